// Package main: cofishctl, консоль оператора CoFish.
// Работает напрямую с хранилищем из той же конфигурации, что и API.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	log "github.com/sirupsen/logrus"

	"cofish.app/core/internal/app"
	"cofish.app/core/internal/config"
	"cofish.app/core/internal/features/admin"
	"cofish.app/core/internal/features/ledger"
	"cofish.app/core/internal/store"
)

// env открытое хранилище и сервисы, живут до конца команды.
type env struct {
	store  store.Store
	ledger *ledger.Service
	admin  *admin.Service
	close  func()
}

func (e *env) open(cmd *cobra.Command) error {
	if e.store != nil {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, err := log.ParseLevel(cfg.AppLogLevel)
	if err == nil {
		log.SetLevel(level)
	}
	s, closeStore, err := app.OpenStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	e.store = s
	e.close = closeStore
	e.ledger = ledger.NewService(s, app.RetryPolicy(cfg), cfg.LedgerPageLimit)
	e.admin = admin.NewService(admin.NewRepository(s), e.ledger, cfg.AdminPasswordHash, cfg.CatchBasePoints)
	return nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)

	e := &env{}
	root := &cobra.Command{
		Use:           "cofishctl",
		Short:         "Обслуживание данных CoFish",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	h := admin.NewHandler(func(cmd *cobra.Command) (*admin.Service, error) {
		if err := e.open(cmd); err != nil {
			return nil, err
		}
		return e.admin, nil
	})
	root.AddCommand(h.Commands()...)
	root.AddCommand(reconcileCommand(e), hashPasswordCommand())

	err := root.Execute()
	if e.close != nil {
		e.close()
	}
	if err != nil {
		log.WithError(err).Error("Команда завершилась с ошибкой")
		os.Exit(1)
	}
}

// reconcileCommand сверка балансов с историей. При расхождениях команда завершается ошибкой.
func reconcileCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Сверить балансы всех пользователей с историей начислений",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := e.open(cmd); err != nil {
				return err
			}
			mismatches, err := e.ledger.AuditAll(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(mismatches); err != nil {
				return err
			}
			if len(mismatches) > 0 {
				return fmt.Errorf("найдено расхождений балансов: %d", len(mismatches))
			}
			return nil
		},
	}
}

func hashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password PASSWORD",
		Short: "Получить argon2id-хеш для ADMIN_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := admin.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
