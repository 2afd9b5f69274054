package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"twarchive/pkg/auth"
	"twarchive/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage API credentials",
	Long: `Manage stored API credentials securely.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read only)

Never share your credentials or config files!`,
}

var loginCmd = &cobra.Command{
	Use:   "login [account]",
	Short: "Store API credentials securely",
	Long: `Store the four OAuth 1.0a secrets in the system keychain or encrypted file.

You will be prompted for the account name (if not provided), the consumer
key and secret, and the access token and secret. Secrets are not echoed.`,
	Example: `  # Interactive login
  twarchive auth login

  # Login with an account name
  twarchive auth login myhandle`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout <account>",
	Short: "Remove stored credentials",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogout,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored accounts",
	Long:  `List all stored accounts with masked credentials.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var guideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Explain where to find the four API secrets",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		auth.ShowCredentialGuide(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
	authCmd.AddCommand(guideCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)
	auth.ShowQuickGuide(cmd.OutOrStdout())
	fmt.Println()

	var name string
	if len(args) > 0 {
		name = args[0]
	} else {
		fmt.Print("👤 Account name: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read account name: %w", err)
		}
		name = strings.TrimSpace(input)
	}
	if name == "" {
		return fmt.Errorf("account name is required")
	}

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("\n⚠️  Account '%s' already exists. Update credentials? (y/N): ", name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Println("\n🔐 Enter your secrets (they will be hidden as you type):")
	account := &auth.Account{Name: name}
	for _, field := range []struct {
		label string
		dst   *string
	}{
		{"Consumer key", &account.ConsumerKey},
		{"Consumer secret", &account.ConsumerSecret},
		{"Access token", &account.AccessToken},
		{"Access token secret", &account.AccessTokenSecret},
	} {
		fmt.Printf("%s: ", field.label)
		value, err := readSecret(reader)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", strings.ToLower(field.label), err)
		}
		if value == "" {
			return fmt.Errorf("%s is required", strings.ToLower(field.label))
		}
		*field.dst = value
	}

	fmt.Println("\n💾 Storing credentials securely...")
	if err := manager.Store(account); err != nil {
		return err
	}

	ui.PrintSuccess("Account saved: " + name)
	fmt.Println("\n📖 Start archiving with:")
	fmt.Println("   $ twarchive run")
	fmt.Println("\n   Use a specific account:")
	fmt.Printf("   $ twarchive run --account %s\n", name)
	fmt.Println("\n⚠️  Never share your credentials or config files!")
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	if err := manager.Delete(args[0]); err != nil {
		return err
	}
	ui.PrintSuccess("Account removed: " + args[0])
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "Use 'twarchive auth login' to add an account")
		return nil
	}

	ui.PrintHighlight("Stored Accounts")
	ui.Println()
	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		ui.Println(fmt.Sprintf("%d. Account: %s", i+1, sanitized.Name))
		ui.Println("   Consumer key:        " + sanitized.ConsumerKey)
		ui.Println("   Consumer secret:     " + sanitized.ConsumerSecret)
		ui.Println("   Access token:        " + sanitized.AccessToken)
		ui.Println("   Access token secret: " + sanitized.AccessTokenSecret)
		ui.Println("   Last modified:       " + sanitized.LastModified.Format("2006-01-02 15:04:05"))
		ui.Println()
	}
	return nil
}

// readSecret reads a line without echo when stdin is a terminal
func readSecret(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
