package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sajilopay/payments/internal/bootstrap"
	"github.com/sajilopay/payments/internal/controller"
	"github.com/sajilopay/payments/internal/gateway"
	"github.com/sajilopay/payments/internal/service"
	"github.com/sajilopay/payments/pkg/retry"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "sajilopay-api", "sajilopay")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}

	// --- Gateway clients ---
	gwCfg := app.Config.Gateway
	esewa := gateway.NewEsewaClient(gateway.EsewaConfig{
		ProductCode: gwCfg.Esewa.ProductCode,
		SecretKey:   gwCfg.Esewa.SecretKey,
		TestMode:    gwCfg.Esewa.TestMode,
	}, gateway.WithTimeout(gwCfg.Timeout))
	khalti := gateway.NewKhaltiClient(gateway.KhaltiConfig{
		SecretKey: gwCfg.Khalti.SecretKey,
		TestMode:  gwCfg.Khalti.TestMode,
	}, gateway.WithTimeout(gwCfg.Timeout))

	// --- Services ---
	checkoutService := service.NewCheckoutService(esewa, khalti, retry.Config{
		MaxAttempts:  gwCfg.Retry.MaxAttempts,
		InitialDelay: gwCfg.Retry.InitialDelay,
		MaxDelay:     gwCfg.Retry.MaxDelay,
	}, app.Metrics, app.Logger)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		CheckoutService: checkoutService,
		Metrics:         app.Metrics,
		CORSConfig:      app.Config.Server.CORS,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
