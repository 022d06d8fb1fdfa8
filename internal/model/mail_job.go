package model

// MailJob is the payload queued for the mail dispatch worker. It is a broker
// message, not a database table.
type MailJob struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
}
