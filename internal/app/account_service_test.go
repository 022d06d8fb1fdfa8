package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"bytebits/internal/model"
	"bytebits/internal/pkg/tokenutil"
)

type fakeUsers struct {
	byID        map[uint]*model.User
	nextID      uint
	createErr   error
	updateCalls int
	deleteCalls int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[uint]*model.User)}
}

func (f *fakeUsers) Create(_ context.Context, user *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	user.ID = f.nextID
	f.byID[user.ID] = user
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uint) (*model.User, error) {
	return f.byID[id], nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	for _, u := range f.byID {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) GetByIdentifier(_ context.Context, identifier string) (*model.User, error) {
	for _, u := range f.byID {
		if u.Email == identifier || strings.EqualFold(u.Username, identifier) {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) GetByEmailOrUsername(_ context.Context, email, username string) (*model.User, error) {
	for _, u := range f.byID {
		if u.Email == email || strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) Update(_ context.Context, user *model.User) error {
	f.updateCalls++
	f.byID[user.ID] = user
	return nil
}

func (f *fakeUsers) Delete(_ context.Context, id uint) error {
	f.deleteCalls++
	delete(f.byID, id)
	return nil
}

type fakePosts struct {
	authors     map[uint]string
	reassignErr error
}

func newFakePosts() *fakePosts {
	return &fakePosts{authors: make(map[uint]string)}
}

func (f *fakePosts) ReassignAuthor(_ context.Context, oldAuthor, newAuthor string) error {
	if f.reassignErr != nil {
		return f.reassignErr
	}
	for id, author := range f.authors {
		if author == oldAuthor {
			f.authors[id] = newAuthor
		}
	}
	return nil
}

type fakeTx struct {
	users *fakeUsers
	posts *fakePosts
}

func (f *fakeTx) RunInTx(ctx context.Context, fn func(users UserStore, posts PostStore) error) error {
	return fn(f.users, f.posts)
}

type fakeMailer struct {
	jobs []model.MailJob
	err  error
}

func (f *fakeMailer) Publish(_ context.Context, job model.MailJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

var testSecret = []byte("test-secret")

func newTestService(users *fakeUsers, posts *fakePosts, mailer *fakeMailer) *AccountService {
	return NewAccountService(users, &fakeTx{users: users, posts: posts}, mailer, testSecret, time.Hour, time.Hour, "https://blog.test")
}

func seedUser(t *testing.T, users *fakeUsers, email, username, password string, verified bool) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &model.User{Email: email, Username: username, PasswordHash: string(hash), Verified: verified}
	require.NoError(t, users.Create(context.Background(), user))
	return user
}

func TestSignup_CreatesUnverifiedUserAndQueuesMail(t *testing.T) {
	users, posts, mailer := newFakeUsers(), newFakePosts(), &fakeMailer{}
	svc := newTestService(users, posts, mailer)

	result, err := svc.Signup(context.Background(), SignupInput{
		Email:    "new@example.com",
		Username: "new_user",
		Password: "c0rrec7-H0rse-ba77ery",
		Host:     "http://localhost:8080",
	})
	require.NoError(t, err)
	require.NoError(t, result.MailErr)

	assert.False(t, result.User.Verified)
	assert.NotEqual(t, "c0rrec7-H0rse-ba77ery", result.User.PasswordHash)
	require.Len(t, mailer.jobs, 1)
	assert.Equal(t, "new@example.com", mailer.jobs[0].To)
	assert.Contains(t, mailer.jobs[0].HTMLBody, "https://blog.test/auth/verify?token=")
}

func TestSignup_DuplicateEmail(t *testing.T) {
	users, posts, mailer := newFakeUsers(), newFakePosts(), &fakeMailer{}
	seedUser(t, users, "taken@example.com", "someone", "pw", true)
	svc := newTestService(users, posts, mailer)

	_, err := svc.Signup(context.Background(), SignupInput{
		Email:    "taken@example.com",
		Username: "other_name",
		Password: "pw-long-enough",
	})
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.Len(t, users.byID, 1)
}

func TestSignup_DuplicateUsernameIgnoresCase(t *testing.T) {
	users, posts, mailer := newFakeUsers(), newFakePosts(), &fakeMailer{}
	seedUser(t, users, "a@example.com", "Some_User", "pw", true)
	svc := newTestService(users, posts, mailer)

	_, err := svc.Signup(context.Background(), SignupInput{
		Email:    "b@example.com",
		Username: "some_user",
		Password: "pw-long-enough",
	})
	assert.ErrorIs(t, err, ErrUsernameTaken)
	assert.Len(t, users.byID, 1)
}

func TestSignup_LostRaceMapsDuplicateKeyToConflict(t *testing.T) {
	users, posts, mailer := newFakeUsers(), newFakePosts(), &fakeMailer{}
	svc := newTestService(users, posts, mailer)

	// Pre-check sees nothing, but the insert hits the unique index.
	users.createErr = gorm.ErrDuplicatedKey
	_, err := svc.Signup(context.Background(), SignupInput{
		Email:    "raced@example.com",
		Username: "raced_user",
		Password: "pw-long-enough",
	})
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestSignup_MailFailureDoesNotFailSignup(t *testing.T) {
	users, posts := newFakeUsers(), newFakePosts()
	mailer := &fakeMailer{err: errors.New("broker down")}
	svc := newTestService(users, posts, mailer)

	result, err := svc.Signup(context.Background(), SignupInput{
		Email:    "new@example.com",
		Username: "new_user",
		Password: "pw-long-enough",
	})
	require.NoError(t, err)
	assert.Error(t, result.MailErr)
	assert.Len(t, users.byID, 1)
}

func TestLogin_UnknownAndWrongPasswordLookIdentical(t *testing.T) {
	users, posts, mailer := newFakeUsers(), newFakePosts(), &fakeMailer{}
	seedUser(t, users, "user@example.com", "the_user", "right-password", true)
	svc := newTestService(users, posts, mailer)

	_, errUnknown := svc.Login(context.Background(), LoginInput{Identifier: "nobody@example.com", Password: "whatever"})
	_, errWrongPw := svc.Login(context.Background(), LoginInput{Identifier: "user@example.com", Password: "wrong-password"})

	assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	assert.ErrorIs(t, errWrongPw, ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrongPw.Error())
}

func TestLogin_ByEmailAndByUsernameCaseInsensitive(t *testing.T) {
	users, posts, mailer := newFakeUsers(), newFakePosts(), &fakeMailer{}
	seedUser(t, users, "user@example.com", "The_User", "right-password", true)
	svc := newTestService(users, posts, mailer)

	byEmail, err := svc.Login(context.Background(), LoginInput{Identifier: "user@example.com", Password: "right-password"})
	require.NoError(t, err)
	byName, err := svc.Login(context.Background(), LoginInput{Identifier: "the_user", Password: "right-password"})
	require.NoError(t, err)
	assert.Equal(t, byEmail.ID, byName.ID)
}

func TestLogin_UnverifiedIsDistinctAfterPasswordMatch(t *testing.T) {
	users, posts, mailer := newFakeUsers(), newFakePosts(), &fakeMailer{}
	seedUser(t, users, "user@example.com", "the_user", "right-password", false)
	svc := newTestService(users, posts, mailer)

	// Wrong password on an unverified account must NOT reveal the account.
	_, err := svc.Login(context.Background(), LoginInput{Identifier: "user@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), LoginInput{Identifier: "user@example.com", Password: "right-password"})
	assert.ErrorIs(t, err, ErrNotVerified)
}

func TestVerify_FlipsFlagOnce(t *testing.T) {
	users, posts, mailer := newFakeUsers(), newFakePosts(), &fakeMailer{}
	user := seedUser(t, users, "user@example.com", "the_user", "pw", false)
	svc := newTestService(users, posts, mailer)

	token, err := tokenutil.Issue(tokenutil.Claims{Email: user.Email}, testSecret, time.Hour)
	require.NoError(t, err)

	verified, err := svc.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, verified.Verified)
	assert.Equal(t, 1, users.updateCalls)

	// Replaying the link must succeed without another write.
	again, err := svc.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, again.Verified)
	assert.Equal(t, 1, users.updateCalls)
}

func TestVerify_BadTokenAndMissingAccountAreGeneric(t *testing.T) {
	users, posts, mailer := newFakeUsers(), newFakePosts(), &fakeMailer{}
	svc := newTestService(users, posts, mailer)

	_, err := svc.Verify(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	token, issueErr := tokenutil.Issue(tokenutil.Claims{Email: "ghost@example.com"}, testSecret, time.Hour)
	require.NoError(t, issueErr)
	_, err = svc.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestForgotPassword_UniformOutcome(t *testing.T) {
	users, posts, mailer := newFakeUsers(), newFakePosts(), &fakeMailer{}
	seedUser(t, users, "known@example.com", "known_user", "pw", true)
	svc := newTestService(users, posts, mailer)

	require.NoError(t, svc.ForgotPassword(context.Background(), "unknown@example.com", ""))
	assert.Empty(t, mailer.jobs)

	require.NoError(t, svc.ForgotPassword(context.Background(), "known@example.com", ""))
	require.Len(t, mailer.jobs, 1)
	assert.Contains(t, mailer.jobs[0].HTMLBody, "/auth/reset?token=")
}

func TestForgotPassword_PublishFailureStaysUniform(t *testing.T) {
	users, posts := newFakeUsers(), newFakePosts()
	mailer := &fakeMailer{err: errors.New("broker down")}
	seedUser(t, users, "known@example.com", "known_user", "pw", true)
	svc := newTestService(users, posts, mailer)

	assert.NoError(t, svc.ForgotPassword(context.Background(), "known@example.com", ""))
}

func TestResetPassword(t *testing.T) {
	users, posts, mailer := newFakeUsers(), newFakePosts(), &fakeMailer{}
	user := seedUser(t, users, "user@example.com", "the_user", "old-password", true)
	svc := newTestService(users, posts, mailer)

	token, err := tokenutil.Issue(tokenutil.Claims{Email: user.Email}, testSecret, time.Hour)
	require.NoError(t, err)

	require.NoError(t, svc.ResetPassword(context.Background(), token, "brand-new-password"))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("brand-new-password")))

	assert.ErrorIs(t, svc.ResetPassword(context.Background(), "garbage", "pw"), ErrInvalidToken)

	expired, err := tokenutil.Issue(tokenutil.Claims{Email: user.Email}, testSecret, -time.Second)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.ResetPassword(context.Background(), expired, "pw"), ErrInvalidToken)
}

func TestEmailChange_ConfirmRechecksUniqueness(t *testing.T) {
	users, posts, mailer := newFakeUsers(), newFakePosts(), &fakeMailer{}
	user := seedUser(t, users, "user@example.com", "the_user", "pw", true)
	svc := newTestService(users, posts, mailer)

	require.NoError(t, svc.RequestEmailChange(context.Background(), user.ID, "next@example.com", ""))
	require.Len(t, mailer.jobs, 1)
	// Confirmation goes to the CURRENT address.
	assert.Equal(t, "user@example.com", mailer.jobs[0].To)

	// Someone claims the address between request and confirmation.
	seedUser(t, users, "next@example.com", "squatter", "pw", true)

	token, err := tokenutil.Issue(tokenutil.Claims{UserID: user.ID, NewEmail: "next@example.com"}, testSecret, time.Hour)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.ConfirmEmailChange(context.Background(), token, ""), ErrEmailTaken)
	assert.Equal(t, "user@example.com", user.Email)
}

func TestEmailChange_ConfirmMutatesAndUnverifies(t *testing.T) {
	users, posts, mailer := newFakeUsers(), newFakePosts(), &fakeMailer{}
	user := seedUser(t, users, "user@example.com", "the_user", "pw", true)
	svc := newTestService(users, posts, mailer)

	token, err := tokenutil.Issue(tokenutil.Claims{UserID: user.ID, NewEmail: "next@example.com"}, testSecret, time.Hour)
	require.NoError(t, err)

	require.NoError(t, svc.ConfirmEmailChange(context.Background(), token, ""))
	assert.Equal(t, "next@example.com", user.Email)
	assert.False(t, user.Verified)
	// A fresh verification mail targets the new address.
	require.NotEmpty(t, mailer.jobs)
	assert.Equal(t, "next@example.com", mailer.jobs[len(mailer.jobs)-1].To)
}

func TestUsernameChange_ConfirmRewritesPostAuthors(t *testing.T) {
	users, posts, mailer := newFakeUsers(), newFakePosts(), &fakeMailer{}
	user := seedUser(t, users, "user@example.com", "old_name", "pw", true)
	posts.authors = map[uint]string{1: "old_name", 2: "someone_else", 3: "old_name"}
	svc := newTestService(users, posts, mailer)

	token, err := tokenutil.Issue(tokenutil.Claims{UserID: user.ID, NewUsername: "new_name"}, testSecret, time.Hour)
	require.NoError(t, err)

	require.NoError(t, svc.ConfirmUsernameChange(context.Background(), token))
	assert.Equal(t, "new_name", user.Username)
	assert.Equal(t, "new_name", posts.authors[1])
	assert.Equal(t, "someone_else", posts.authors[2])
	assert.Equal(t, "new_name", posts.authors[3])
}

func TestUsernameChange_ConfirmConflictLeavesState(t *testing.T) {
	users, posts, mailer := newFakeUsers(), newFakePosts(), &fakeMailer{}
	user := seedUser(t, users, "user@example.com", "old_name", "pw", true)
	seedUser(t, users, "other@example.com", "New_Name", "pw", true)
	posts.authors = map[uint]string{1: "old_name"}
	svc := newTestService(users, posts, mailer)

	token, err := tokenutil.Issue(tokenutil.Claims{UserID: user.ID, NewUsername: "new_name"}, testSecret, time.Hour)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ConfirmUsernameChange(context.Background(), token), ErrUsernameTaken)
	assert.Equal(t, "old_name", user.Username)
	assert.Equal(t, "old_name", posts.authors[1])
}

func TestConfirmDeletion_ReassignsPostsAndRemovesAccount(t *testing.T) {
	users, posts, mailer := newFakeUsers(), newFakePosts(), &fakeMailer{}
	user := seedUser(t, users, "user@example.com", "doomed_user", "pw", true)
	posts.authors = map[uint]string{1: "doomed_user", 2: "bystander"}
	svc := newTestService(users, posts, mailer)

	token, err := tokenutil.Issue(tokenutil.Claims{UserID: user.ID}, testSecret, time.Hour)
	require.NoError(t, err)

	require.NoError(t, svc.ConfirmDeletion(context.Background(), token))
	assert.Empty(t, users.byID)
	assert.Equal(t, model.DeletedAuthor, posts.authors[1])
	assert.Equal(t, "bystander", posts.authors[2])
}

func TestConfirmDeletion_RewriteFailureKeepsAccount(t *testing.T) {
	users, posts, mailer := newFakeUsers(), newFakePosts(), &fakeMailer{}
	user := seedUser(t, users, "user@example.com", "doomed_user", "pw", true)
	posts.reassignErr = errors.New("db down")
	svc := newTestService(users, posts, mailer)

	token, err := tokenutil.Issue(tokenutil.Claims{UserID: user.ID}, testSecret, time.Hour)
	require.NoError(t, err)

	assert.Error(t, svc.ConfirmDeletion(context.Background(), token))
	assert.Equal(t, 0, users.deleteCalls)
	assert.Len(t, users.byID, 1)
}

func TestRequestDeletion_QueuesConfirmationMail(t *testing.T) {
	users, posts, mailer := newFakeUsers(), newFakePosts(), &fakeMailer{}
	user := seedUser(t, users, "user@example.com", "the_user", "pw", true)
	svc := newTestService(users, posts, mailer)

	require.NoError(t, svc.RequestDeletion(context.Background(), user.ID, ""))
	require.Len(t, mailer.jobs, 1)
	assert.Contains(t, mailer.jobs[0].HTMLBody, "/auth/confirm-delete-account?token=")
	// Nothing is deleted until the link is followed.
	assert.Len(t, users.byID, 1)
}
