package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/shepherd/internal/backup"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Encrypted follow-up state backups in S3-compatible storage",
}

var backupRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Upload an encrypted copy of the follow-up state",
	Args:  cobra.NoArgs,
	RunE:  runBackup,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored backups",
	Args:  cobra.NoArgs,
	RunE:  runBackupList,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <key>",
	Short: "Replace the follow-up state with a stored backup",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupRestore,
}

var backupPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete backups older than backup.retention_days",
	Args:  cobra.NoArgs,
	RunE:  runBackupPrune,
}

func init() {
	backupCmd.AddCommand(backupRunCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupPruneCmd)
}

func newBackupManager() (*app, *backup.Manager, error) {
	a, err := newApp()
	if err != nil {
		return nil, nil, err
	}
	b := a.cfg.Backup
	m := backup.NewManager(backup.Config{
		Endpoint:   b.Endpoint,
		Bucket:     b.Bucket,
		Region:     b.Region,
		AccessKey:  b.AccessKey,
		SecretKey:  b.SecretKey,
		Prefix:     b.Prefix,
		Passphrase: b.Passphrase,
	}, a.backend, backup.WithLogger(a.logger.With("component", "backup")))
	if !m.Configured() {
		a.close()
		return nil, nil, fmt.Errorf("%w: set backup.bucket, backup.access_key, backup.secret_key and backup.passphrase", backup.ErrNotConfigured)
	}
	return a, m, nil
}

func runBackup(cmd *cobra.Command, args []string) error {
	a, m, err := newBackupManager()
	if err != nil {
		return err
	}
	defer a.close()

	obj, err := m.Run(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s (%d bytes)\n", obj.Key, obj.Size)
	return nil
}

func runBackupList(cmd *cobra.Command, args []string) error {
	a, m, err := newBackupManager()
	if err != nil {
		return err
	}
	defer a.close()

	objects, err := m.List(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(objects) == 0 {
		fmt.Fprintln(out, "No backups stored.")
		return nil
	}
	for _, obj := range objects {
		fmt.Fprintf(out, "%s  %8d  %s\n", obj.LastModified.In(a.location).Format("2006-01-02 15:04"), obj.Size, obj.Key)
	}
	return nil
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	a, m, err := newBackupManager()
	if err != nil {
		return err
	}
	defer a.close()

	if err := m.Restore(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Restored follow-up state from %s\n", args[0])
	return nil
}

func runBackupPrune(cmd *cobra.Command, args []string) error {
	a, m, err := newBackupManager()
	if err != nil {
		return err
	}
	defer a.close()

	deleted, err := m.Prune(cmd.Context(), a.cfg.Backup.RetentionDays)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d backup(s) older than %d days\n", deleted, a.cfg.Backup.RetentionDays)
	return nil
}
