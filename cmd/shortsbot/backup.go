package main

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shortsbot/internal/config"
	"shortsbot/internal/registry"

	"github.com/spf13/cobra"
)

const (
	backupDBName     = "users.db"
	backupConfigName = "config.yaml"
)

func backupCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create a backup of the user registry and config",
		Long: `Creates a compressed .tar.gz archive containing a consistent snapshot
of the SQLite user registry and the config file. Safe to run while the
bot is serving. MySQL registries should be backed up with mysqldump.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := registry.Open(cfg.Database.Driver, cfg.Database.DSN, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if outputPath == "" {
				backupDir := filepath.Join(config.DefaultConfigDir(), "backups")
				ts := time.Now().Format("20060102-150405")
				outputPath = filepath.Join(backupDir, fmt.Sprintf("shortsbot-backup-%s.tar.gz", ts))
			}
			if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
				return fmt.Errorf("cannot create backup directory: %w", err)
			}

			tmpDir, err := os.MkdirTemp("", "shortsbot-backup-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(tmpDir)

			snapshot := filepath.Join(tmpDir, backupDBName)
			if err := store.Backup(cmd.Context(), snapshot); err != nil {
				return fmt.Errorf("snapshot failed: %w", err)
			}

			entries := map[string]string{backupDBName: snapshot}
			if cfgPath := resolveConfigPath(); cfgPath != "" {
				entries[backupConfigName] = config.ExpandPath(cfgPath)
			}

			if err := createTarGz(outputPath, entries); err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Backup created: %s\n", outputPath)
			for name, path := range entries {
				size := int64(0)
				if info, err := os.Stat(path); err == nil {
					size = info.Size()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s (%s)\n", name, humanSize(size))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path (default: ~/.shortsbot/backups/shortsbot-backup-<timestamp>.tar.gz)")
	cmd.AddCommand(restoreCmd())
	return cmd
}

func restoreCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore <file.tar.gz>",
		Short: "Restore the user registry and config from a backup archive",
		Long: `Restores the SQLite user registry and config file from an archive
created by 'shortsbot backup'. Stop the bot before restoring.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			driver, dbPath, err := registry.ResolveDSN(cfg.Database.Driver, cfg.Database.DSN)
			if err != nil {
				return err
			}
			if driver != registry.DriverSQLite {
				return fmt.Errorf("restore is only supported for sqlite (driver: %s)", driver)
			}

			cfgPath := resolveConfigPath()
			if cfgPath == "" {
				cfgPath = config.DefaultConfigPath()
			}
			cfgPath = config.ExpandPath(cfgPath)

			if !force {
				for _, p := range []string{dbPath, cfgPath} {
					if _, err := os.Stat(p); err == nil {
						fmt.Fprintf(cmd.OutOrStdout(), "WARNING: %s exists and would be overwritten.\n", p)
						return fmt.Errorf("restore aborted (use --force to proceed)")
					}
				}
			}

			restored, err := extractTarGz(args[0], map[string]string{
				backupDBName:     dbPath,
				backupConfigName: cfgPath,
			})
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			// Stale WAL files belong to the replaced database.
			for _, suffix := range []string{"-wal", "-shm"} {
				os.Remove(dbPath + suffix)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Restore completed from: %s\n", args[0])
			for _, f := range restored {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", f)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing data without warning")
	return cmd
}

// createTarGz writes entries (archive name -> file path) to a .tar.gz.
func createTarGz(outputPath string, entries map[string]string) error {
	outFile, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer outFile.Close()

	gzWriter := gzip.NewWriter(outFile)
	tarWriter := tar.NewWriter(gzWriter)

	for name, filePath := range entries {
		if err := addFileToTar(tarWriter, name, filePath); err != nil {
			return fmt.Errorf("add %s: %w", filePath, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return err
	}
	if err := gzWriter.Close(); err != nil {
		return err
	}
	return outFile.Close()
}

func addFileToTar(tw *tar.Writer, name, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = name

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	_, err = io.Copy(tw, file)
	return err
}

// extractTarGz writes the archive members named in targets to their
// mapped paths. Unknown members are skipped.
func extractTarGz(archivePath string, targets map[string]string) ([]string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("not a valid gzip file: %w", err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	var restored []string

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		targetPath, ok := targets[strings.TrimPrefix(header.Name, "./")]
		if !ok || header.Typeflag != tar.TypeReg {
			continue
		}

		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return nil, err
		}

		outFile, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", targetPath, err)
		}
		if _, err := io.Copy(outFile, tarReader); err != nil {
			outFile.Close()
			return nil, fmt.Errorf("extract %s: %w", targetPath, err)
		}
		if err := outFile.Close(); err != nil {
			return nil, err
		}

		restored = append(restored, targetPath)
	}

	if len(restored) == 0 {
		return nil, fmt.Errorf("archive %s contains no shortsbot data", archivePath)
	}
	return restored, nil
}

func humanSize(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
