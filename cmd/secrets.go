package cmd

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/OpenCHAMI/pductl/pkg/pdu"
	"github.com/OpenCHAMI/pductl/pkg/secrets"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	secretsStoreFormat    string
	secretsStoreInputFile string
)

var secretsCmd = &cobra.Command{
	Use: "secrets",
	Example: `  // generate new key and set environment variable
  export MASTER_KEY=$(pductl secrets generatekey)

  // store the login for one PDU endpoint, and a fallback for all others
  pductl secrets store rack1 admin:pm8 --secrets-file secrets.json
  pductl secrets store default admin:pm8 --secrets-file secrets.json

  // retrieve creds from secrets store
  pductl secrets retrieve rack1 --secrets-file secrets.json

  // list creds from specific secrets
  pductl secrets list --secrets-file secrets.json`,
	Short: "Manage console logins for PDUs",
	Long:  "Manage the console logins used for each PDU endpoint. Entries are keyed by endpoint name, with 'default' used for endpoints that have none. This requires generating a key and setting the 'MASTER_KEY' environment variable for the secrets store.",
}

var secretsGenerateKeyCmd = &cobra.Command{
	Use:   "generatekey",
	Args:  cobra.NoArgs,
	Short: "Generates a new 32-byte master key (in hex).",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := secrets.GenerateMasterKey()
		if err != nil {
			return fmt.Errorf("error generating master key: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

var secretsStoreCmd = &cobra.Command{
	Use:   "store <endpoint> [value]",
	Args:  cobra.RangeArgs(1, 2),
	Short: "Stores a PDU login under an endpoint name.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			secretID    = args[0]
			secretValue string
		)
		if len(args) > 1 {
			secretValue = args[1]
		}
		if secretsStoreInputFile != "" {
			if secretValue != "" {
				return fmt.Errorf("cannot use -i/--input-file with positional argument")
			}
			b, err := os.ReadFile(secretsStoreInputFile)
			if err != nil {
				return fmt.Errorf("failed to read input file: %w", err)
			}
			secretValue = strings.TrimSpace(string(b))
		}
		if secretValue == "" {
			return fmt.Errorf("no input data or file")
		}

		secretValue, err := normalizeSecret(secretValue, secretsStoreFormat)
		if err != nil {
			return err
		}

		store, err := secrets.OpenStore(secretsFile())
		if err != nil {
			return fmt.Errorf("failed to open secrets store: %w", err)
		}
		return store.StoreSecretByID(secretID, secretValue)
	},
}

// normalizeSecret turns input in the given format into the JSON login
// document kept in the store.
func normalizeSecret(value, inputFormat string) (string, error) {
	switch inputFormat {
	case "basic": // format: $username:$password
		username, password, ok := strings.Cut(value, ":")
		if !ok {
			return "", fmt.Errorf("expected [username:password] format")
		}
		b, err := json.Marshal(pdu.Credentials{Username: username, Password: password})
		if err != nil {
			return "", err
		}
		return string(b), nil
	case "base64": // format: ($encoded_base64_string)
		decoded, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return "", fmt.Errorf("error decoding base64 data: %w", err)
		}
		value = string(decoded)
	case "json": // format: {"username": $username, "password": $password}
	default:
		return "", fmt.Errorf("unknown input format %q (basic|json|base64)", inputFormat)
	}
	if !secrets.ValidCredentials(value) {
		return "", fmt.Errorf("value is not valid JSON with a username and password")
	}
	return value, nil
}

var secretsRetrieveCmd = &cobra.Command{
	Use:   "retrieve <endpoint>",
	Args:  cobra.ExactArgs(1),
	Short: "Prints the login used for an endpoint.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := secrets.OpenStore(secretsFile())
		if err != nil {
			return err
		}
		creds, err := secrets.GetCredentials(store, args[0])
		if err != nil {
			return fmt.Errorf("error retrieving secret: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Secret for %s: %s:%s\n", args[0], creds.Username, creds.Password)
		return nil
	},
}

var secretsListCmd = &cobra.Command{
	Use:   "list",
	Args:  cobra.NoArgs,
	Short: "Lists all the secret IDs and their encrypted values.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := secrets.OpenStore(secretsFile())
		if err != nil {
			return err
		}
		entries, err := store.ListSecrets()
		if err != nil {
			return fmt.Errorf("error listing secrets: %w", err)
		}
		for key, value := range entries {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", key, value)
		}
		return nil
	},
}

var secretsRemoveCmd = &cobra.Command{
	Use:   "remove <endpoint>...",
	Args:  cobra.MinimumNArgs(1),
	Short: "Remove secrets by IDs from secret store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := secrets.OpenStore(secretsFile())
		if err != nil {
			return err
		}
		for _, secretID := range args {
			if err := store.RemoveSecretByID(secretID); err != nil {
				return fmt.Errorf("failed to remove secret: %w", err)
			}
		}
		return nil
	},
}

func secretsFile() string {
	if path := viper.GetString("secrets.file"); path != "" {
		return path
	}
	return "secrets.json"
}

func init() {
	secretsStoreCmd.Flags().StringVarP(&secretsStoreFormat, "input-format", "i", "basic", "Set the input format (basic|json|base64).")
	secretsStoreCmd.Flags().StringVar(&secretsStoreInputFile, "input-file", "", "Set the file to read as input.")

	secretsCmd.AddCommand(secretsGenerateKeyCmd)
	secretsCmd.AddCommand(secretsStoreCmd)
	secretsCmd.AddCommand(secretsRetrieveCmd)
	secretsCmd.AddCommand(secretsListCmd)
	secretsCmd.AddCommand(secretsRemoveCmd)

	rootCmd.AddCommand(secretsCmd)
}
