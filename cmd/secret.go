package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/bnema/coplay/internal/domain"
	"github.com/spf13/cobra"
)

func newSecretCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage the session password and history API key",
	}

	cmd.AddCommand(newSecretSetCmd(flags), newSecretDeleteCmd(flags))
	return cmd
}

func newSecretSetCmd(flags *globalFlags) *cobra.Command {
	var historyKey bool
	var value string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store a secret; the value is read from stdin unless --value is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			app, err := wireApp(cmd, flags)
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, app.close(cmd.Context()))
			}()

			key, err := app.secretKey(historyKey)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("value") {
				line, readErr := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if readErr != nil && line == "" {
					return fmt.Errorf("read secret from stdin: %w", readErr)
				}
				value = line
			}
			value = strings.TrimRight(value, "\r\n")
			if value == "" {
				return errors.New("secret value is empty")
			}

			if err := app.secretStore.Put(cmd.Context(), key, value); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Stored %s\n", key)
			return err
		},
	}

	cmd.Flags().BoolVar(&historyKey, "history-api-key", false, "Store the history API key instead of the session password")
	cmd.Flags().StringVar(&value, "value", "", "Secret value (visible in shell history; prefer stdin)")

	return cmd
}

func newSecretDeleteCmd(flags *globalFlags) *cobra.Command {
	var historyKey bool

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove a stored secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			app, err := wireApp(cmd, flags)
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, app.close(cmd.Context()))
			}()

			key, err := app.secretKey(historyKey)
			if err != nil {
				return err
			}

			if err := app.secretStore.Delete(cmd.Context(), key); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", key)
			return err
		},
	}

	cmd.Flags().BoolVar(&historyKey, "history-api-key", false, "Delete the history API key instead of the session password")

	return cmd
}

func (a *app) secretKey(historyKey bool) (string, error) {
	if historyKey {
		return domain.HistoryAPIKeyKey(), nil
	}
	if a.cfg.Session.SecretRef == "" {
		return "", errors.New("session.username is not configured; cannot name the session password")
	}
	return a.cfg.Session.SecretRef, nil
}
