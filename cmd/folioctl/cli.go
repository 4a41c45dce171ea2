package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/foliosite/folio/pkg/authsdk"
)

const commandTimeout = 30 * time.Second

type CLI struct {
	client *authsdk.SDKClient
	creds  *authsdk.CredentialStore
	stdin  *bufio.Reader
}

func newCLI(server, credsPath string) (*CLI, error) {
	if server == "" {
		server = os.Getenv("FOLIO_SERVER")
	}
	if server == "" {
		server = "http://localhost:8080"
	}

	if credsPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine home directory: %w", err)
		}
		credsPath = filepath.Join(home, ".folioctl.db")
	}

	creds, err := authsdk.OpenCredentialStore(credsPath)
	if err != nil {
		return nil, err
	}

	return &CLI{
		client: authsdk.NewSDKClient(server),
		creds:  creds,
		stdin:  bufio.NewReader(os.Stdin),
	}, nil
}

func (c *CLI) Close() {
	_ = c.creds.Close()
}

func (c *CLI) Run(command string, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch command {
	case "login":
		return c.cmdLogin(ctx)
	case "whoami":
		return c.cmdWhoami(ctx)
	case "logout":
		return c.cmdLogout(ctx)
	case "register":
		if len(args) < 1 {
			return fmt.Errorf("usage: folioctl register <username>")
		}
		return c.cmdRegister(ctx, args[0])
	case "setup-2fa":
		return c.cmdSetupTwoFactor(ctx)
	case "disable-2fa":
		return c.cmdDisableTwoFactor(ctx)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func (c *CLI) cmdLogin(ctx context.Context) error {
	username, err := c.readLine("Username: ")
	if err != nil {
		return err
	}
	password, err := readPassword("Password: ")
	if err != nil {
		return err
	}

	session, err := c.client.Login(ctx, username, password)
	if err != nil {
		var challenge *authsdk.TwoFactorRequiredError
		if !errors.As(err, &challenge) {
			return err
		}

		session, err = c.completeChallenge(ctx, challenge)
		if err != nil {
			return err
		}
	}

	err = c.creds.Save(authsdk.Credentials{
		Username:     username,
		AccessToken:  session.AccessToken(),
		RefreshToken: session.RefreshToken(),
	})
	if err != nil {
		return fmt.Errorf("login succeeded but saving credentials failed: %w", err)
	}

	fmt.Printf("Logged in as %s\n", username)
	return nil
}

// completeChallenge prompts for a second factor until the challenge is
// resolved or rejected.
func (c *CLI) completeChallenge(ctx context.Context, challenge *authsdk.TwoFactorRequiredError) (*authsdk.Session, error) {
	fmt.Printf("Two-factor authentication required (%s)\n", strings.Join(challenge.Methods, ", "))

	code, err := c.readLine("Code (prefix with 'backup:' to use a backup code): ")
	if err != nil {
		return nil, err
	}

	isBackup := false
	if rest, ok := strings.CutPrefix(code, "backup:"); ok {
		code = strings.TrimSpace(rest)
		isBackup = true
	}

	return c.client.VerifyTwoFactor(ctx, challenge.ChallengeToken, code, isBackup)
}

func (c *CLI) cmdWhoami(ctx context.Context) error {
	session, err := c.restoreSession()
	if err != nil {
		return err
	}

	user, err := session.Me(ctx)
	if err != nil {
		return c.mapSessionError(err)
	}
	defer c.persistSession(session, user.Username)

	fmt.Printf("ID:        %s\n", user.ID)
	fmt.Printf("Username:  %s\n", user.Username)
	fmt.Printf("Role:      %s\n", user.Role)
	fmt.Printf("2FA:       %v\n", user.TwoFactorEnabled)
	if user.LastLogin != nil {
		fmt.Printf("Last seen: %s\n", user.LastLogin.Format(time.RFC3339))
	}
	return nil
}

func (c *CLI) cmdLogout(ctx context.Context) error {
	session, err := c.restoreSession()
	if err != nil {
		return err
	}

	if err := session.Logout(ctx); err != nil && !errors.Is(err, authsdk.ErrSessionExpired) {
		return err
	}
	if err := c.creds.Delete(); err != nil {
		return err
	}

	fmt.Println("Logged out")
	return nil
}

func (c *CLI) cmdRegister(ctx context.Context, username string) error {
	session, err := c.restoreSession()
	if err != nil {
		return err
	}

	password, err := readPassword("Password for new account: ")
	if err != nil {
		return err
	}
	role, err := c.readLine("Role [admin]: ")
	if err != nil {
		return err
	}

	user, err := session.Register(ctx, username, password, role)
	if err != nil {
		return c.mapSessionError(err)
	}

	fmt.Printf("Created account %s (id %s, role %s)\n", user.Username, user.ID, user.Role)
	return nil
}

func (c *CLI) cmdSetupTwoFactor(ctx context.Context) error {
	session, err := c.restoreSession()
	if err != nil {
		return err
	}

	setup, err := session.SetupTwoFactor(ctx)
	if err != nil {
		return c.mapSessionError(err)
	}

	fmt.Println("Add this secret to your authenticator app:")
	fmt.Printf("  Secret: %s\n", setup.Secret)
	fmt.Printf("  URL:    %s\n", setup.OTPAuthURL)

	code, err := c.readLine("Enter the current code to confirm: ")
	if err != nil {
		return err
	}

	codes, err := session.VerifyTwoFactorSetup(ctx, code)
	if err != nil {
		return c.mapSessionError(err)
	}

	fmt.Println("Two-factor authentication enabled.")
	fmt.Println("Backup codes (shown once, store them safely):")
	for _, backup := range codes.BackupCodes {
		fmt.Printf("  %s\n", backup)
	}
	return nil
}

func (c *CLI) cmdDisableTwoFactor(ctx context.Context) error {
	session, err := c.restoreSession()
	if err != nil {
		return err
	}

	password, err := readPassword("Account password: ")
	if err != nil {
		return err
	}

	if err := session.DisableTwoFactor(ctx, password); err != nil {
		return c.mapSessionError(err)
	}

	fmt.Println("Two-factor authentication disabled")
	return nil
}

// restoreSession rebuilds a session from stored credentials.
func (c *CLI) restoreSession() (*authsdk.Session, error) {
	creds, err := c.creds.Load()
	if err != nil {
		if errors.Is(err, authsdk.ErrNoCredentials) {
			return nil, fmt.Errorf("not logged in; run 'folioctl login' first")
		}
		return nil, err
	}

	return c.client.NewSessionFromTokens(creds.AccessToken, creds.RefreshToken), nil
}

// persistSession writes back the (possibly rotated) tokens after a command.
func (c *CLI) persistSession(session *authsdk.Session, username string) {
	if session.RefreshToken() == "" {
		return
	}
	_ = c.creds.Save(authsdk.Credentials{
		Username:     username,
		AccessToken:  session.AccessToken(),
		RefreshToken: session.RefreshToken(),
	})
}

func (c *CLI) mapSessionError(err error) error {
	if errors.Is(err, authsdk.ErrSessionExpired) {
		_ = c.creds.Delete()
		return fmt.Errorf("session expired; run 'folioctl login' again")
	}
	return err
}

func (c *CLI) readLine(prompt string) (string, error) {
	fmt.Print(prompt)
	input, err := c.stdin.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(passwordBytes), nil
}
