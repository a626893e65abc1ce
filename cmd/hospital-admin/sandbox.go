package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehr/hospital-admin/internal/domain/lifecycle"
	"github.com/ehr/hospital-admin/internal/platform/auth"
	"github.com/ehr/hospital-admin/internal/platform/sandbox"
)

func (a *app) jwtConfig() auth.JWTConfig {
	return auth.JWTConfig{Issuer: sandboxIssuer, SigningKey: []byte(a.cfg.SandboxSigningKey)}
}

func sandboxCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "In-memory reference service for development and tests",
	}
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the sandbox service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, _ := cmd.Flags().GetBool("seed")
			patients, _ := cmd.Flags().GetInt("patients")
			return a.runSandbox(seed, patients)
		},
	}
	serve.Flags().Bool("seed", false, "Generate demo data before serving")
	serve.Flags().Int("patients", sandbox.DefaultSeedConfig().PatientCount, "Patients to generate with --seed")
	cmd.AddCommand(serve)
	return cmd
}

func (a *app) runSandbox(seed bool, patients int) error {
	logger := a.logger
	s := sandbox.NewServer(sandbox.Options{
		JWT:         a.jwtConfig(),
		TaxRate:     a.cfg.TaxRate,
		CORSOrigins: a.cfg.CORSOrigins,
		Logger:      logger,
	})

	if seed {
		cfg := sandbox.DefaultSeedConfig()
		cfg.PatientCount = patients
		res, err := s.Seed(context.Background(), cfg)
		if err != nil {
			return err
		}
		logger.Info().
			Int("appointments", res.TotalAppointments).
			Int("invoices", res.TotalInvoices).
			Dur("duration", res.Duration).
			Msg("sandbox seeded")
	}

	// Graceful shutdown
	go func() {
		addr := ":" + a.cfg.SandboxPort
		logger.Info().Str("addr", addr).Msg("starting sandbox")
		if err := s.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down sandbox")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		return err
	}
	logger.Info().Msg("sandbox stopped")
	return nil
}

func tokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sandbox bearer tokens",
	}
	mint := &cobra.Command{
		Use:   "mint",
		Short: "Sign a sandbox token for the acting role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if ttl <= 0 {
				return lifecycle.FieldValidation("ttl", "ttl must be positive")
			}
			if subject == "" {
				subject = "cli-" + string(a.role)
			}
			tok, err := auth.MintToken(a.jwtConfig(), subject, a.role, ttl)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write([]byte(tok + "\n"))
			return err
		},
	}
	mint.Flags().String("subject", "", "Token subject (default cli-<role>)")
	mint.Flags().Duration("ttl", 8*time.Hour, "Token lifetime")
	cmd.AddCommand(mint)
	return cmd
}
