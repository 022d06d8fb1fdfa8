package mail

import (
	"fmt"

	"bytebits/internal/model"
)

// Builders for every confirmation mail the account flows send. Each embeds
// an absolute link carrying a signed token.

func VerificationMessage(to, username, verifyURL string) model.MailJob {
	return model.MailJob{
		To:      to,
		Subject: "Please verify your email",
		HTMLBody: fmt.Sprintf(
			`<p>Hi %s,</p>
<p>Click below to verify your email (valid for 1 hour):</p>
<a href="%s">%s</a>`,
			username, verifyURL, verifyURL),
	}
}

func PasswordResetMessage(to, resetURL string) model.MailJob {
	return model.MailJob{
		To:      to,
		Subject: "Password Reset",
		HTMLBody: fmt.Sprintf(
			`<p>You requested a password reset.</p>
<p>Click below to reset (valid for 1 hour):</p>
<a href="%s">%s</a>`,
			resetURL, resetURL),
	}
}

func PasswordChangeMessage(to, username, resetURL string) model.MailJob {
	return model.MailJob{
		To:      to,
		Subject: "Confirm Your Password Reset",
		HTMLBody: fmt.Sprintf(
			`<p>Hi %s,</p>
<p>You requested to reset your password. Click below to confirm:</p>
<a href="%s">%s</a>
<p>If you did not request this, please ignore this email.</p>`,
			username, resetURL, resetURL),
	}
}

func EmailChangeMessage(to, username, newEmail, confirmURL string) model.MailJob {
	return model.MailJob{
		To:      to,
		Subject: "Confirm Email Change",
		HTMLBody: fmt.Sprintf(
			`<p>Hello %s,</p>
<p>You requested to change your email address to <strong>%s</strong>. Please click the link below to confirm this change:</p>
<a href="%s">%s</a>`,
			username, newEmail, confirmURL, confirmURL),
	}
}

func UsernameChangeMessage(to, username, newUsername, confirmURL string) model.MailJob {
	return model.MailJob{
		To:      to,
		Subject: "Confirm Username Change",
		HTMLBody: fmt.Sprintf(
			`<p>Hello %s,</p>
<p>You requested to change your username to <strong>%s</strong>. Please click the link below to confirm this change:</p>
<a href="%s">%s</a>`,
			username, newUsername, confirmURL, confirmURL),
	}
}

func AccountDeletionMessage(to, username, confirmURL string) model.MailJob {
	return model.MailJob{
		To:      to,
		Subject: "Confirm Account Deletion",
		HTMLBody: fmt.Sprintf(
			`<p>Hello %s,</p>
<p>You requested to delete your account. This action is irreversible.</p>
<p>Please click the link below to confirm account deletion:</p>
<a href="%s">%s</a>`,
			username, confirmURL, confirmURL),
	}
}
