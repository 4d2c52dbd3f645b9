// Command mt4demo connects to an MT4 Web Terminal signal server, logs in,
// and prints the event stream until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/coachpo/mt4gw/bootstrap"
	"github.com/coachpo/mt4gw/client"
	"github.com/coachpo/mt4gw/config"
	"github.com/coachpo/mt4gw/internal/telemetry"
)

const (
	demoLoggerPrefix  = "mt4demo "
	shutdownTimeout   = 10 * time.Second
	defaultConfigPath = ""
)

func main() {
	opts := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	logger := newDemoLogger()

	settings, err := config.Load(opts.configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	logger.Printf("configuration initialised: pingInterval=%s eventChannelCapacity=%d",
		settings.PingInterval, settings.EventChannelCapacity)

	meter := otel.Meter("mt4gw.client")
	instruments := telemetry.New(meter)

	c := client.New(
		client.WithSettings(settings),
		client.WithInstruments(instruments),
	)

	creds := bootstrap.Credentials{Login: opts.login, Password: opts.password, Server: opts.server}
	if err := c.Connect(ctx, opts.bootstrapURL, creds); err != nil {
		logger.Fatalf("connect: %v", err)
	}
	logger.Print("dial complete; awaiting handshake")

	go pingLoop(ctx, c, settings.PingInterval, logger)

	runEventLoop(ctx, c, logger)

	logger.Print("shutdown signal received, disconnecting")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	disconnectWithTimeout(shutdownCtx, c, logger)
}

type demoOptions struct {
	bootstrapURL string
	login        string
	password     string
	server       string
	configPath   string
}

func parseFlags() demoOptions {
	bootstrapURL := flag.String("bootstrap", "", "base URL of the MT4 Web Terminal HTTP bootstrap endpoint")
	login := flag.String("login", "", "account login")
	password := flag.String("password", "", "account password")
	server := flag.String("server", "", "trade server name")
	configPath := flag.String("config", defaultConfigPath, "path to a YAML file overriding connection-tuning defaults")
	flag.Parse()
	return demoOptions{
		bootstrapURL: *bootstrapURL,
		login:        *login,
		password:     *password,
		server:       *server,
		configPath:   *configPath,
	}
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newDemoLogger() *log.Logger {
	return log.New(os.Stdout, demoLoggerPrefix, log.LstdFlags|log.Lmicroseconds)
}

func pingLoop(ctx context.Context, c *client.Client, interval time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Ping(ctx); err != nil && ctx.Err() == nil {
				logger.Printf("ping: %v", err)
			}
		}
	}
}

func runEventLoop(ctx context.Context, c *client.Client, logger *log.Logger) {
	for {
		evt, err := c.NextEvent(ctx)
		if err != nil {
			return
		}
		logger.Print(describeEvent(evt))
		if evt.Kind == client.EventDisconnected {
			return
		}
	}
}

func describeEvent(evt client.Event) string {
	switch evt.Kind {
	case client.EventAuthenticated:
		return "authenticated"
	case client.EventAuthFailed:
		return fmt.Sprintf("auth failed: code=%d", evt.AuthFailCode)
	case client.EventOrderUpdate:
		return fmt.Sprintf("order update: notify=%d ticket=%d symbol=%s",
			evt.Update.NotifyType, evt.Update.Order.Ticket, evt.Update.Order.Symbol)
	case client.EventTradeSuccess:
		return fmt.Sprintf("trade success: request_id=%d status=%d", evt.TradeSuccess.RequestID, evt.TradeSuccess.Status)
	case client.EventTradeFailed:
		return fmt.Sprintf("trade failed: code=%d message=%s", evt.TradeFailed.Code, evt.TradeFailed.Message)
	case client.EventPong:
		return "pong"
	case client.EventDisconnected:
		return "disconnected"
	case client.EventError:
		return fmt.Sprintf("error: %s", evt.ErrorMessage)
	case client.EventRawMessage:
		return fmt.Sprintf("raw message: command=%d error_code=%d bytes=%d", evt.Raw.Command, evt.Raw.ErrorCode, len(evt.Raw.Data))
	default:
		return fmt.Sprintf("unknown event kind %v", evt.Kind)
	}
}

func disconnectWithTimeout(ctx context.Context, c *client.Client, logger *log.Logger) {
	done := make(chan struct{})
	go func() {
		c.Disconnect()
		close(done)
	}()
	select {
	case <-done:
		logger.Print("disconnect complete")
	case <-ctx.Done():
		logger.Print("disconnect timed out")
	}
}
