// ABOUTME: Client subcommands that talk to a running gateway over HTTP
// ABOUTME: Implements health, studios, history and the offline token minter

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/studio-gateway/internal/auth"
	"github.com/2389/studio-gateway/internal/gateway"
	"github.com/2389/studio-gateway/internal/store"
)

// envToken supplies the bearer token for /api/* when the gateway requires auth.
const envToken = "STUDIO_GATEWAY_TOKEN"

var httpClient = &http.Client{Timeout: 10 * time.Second}

// get performs a GET against the configured gateway and returns the body.
// Non-2xx responses become errors carrying the body text.
func get(ctx context.Context, path string, query url.Values) ([]byte, int, error) {
	_, cfg, err := loadConfig()
	if err != nil {
		return nil, 0, err
	}

	u := url.URL{Scheme: "http", Host: cfg.Server.HTTPAddr, Path: path, RawQuery: query.Encode()}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	if token := os.Getenv(envToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func apiError(status int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return fmt.Errorf("gateway returned %d: %s", status, payload.Error)
	}
	return fmt.Errorf("gateway returned %d", status)
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check gateway health and readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, status, err := get(cmd.Context(), "/health", nil)
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			if status != http.StatusOK {
				return fmt.Errorf("unhealthy: status %d", status)
			}

			body, status, err := get(cmd.Context(), "/health/ready", nil)
			if err != nil {
				return fmt.Errorf("readiness check failed: %w", err)
			}
			if status == http.StatusOK {
				color.New(color.FgGreen).Print("healthy")
			} else {
				color.New(color.FgYellow).Print("healthy")
			}
			fmt.Printf(", %s\n", body)
			return nil
		},
	}
}

func studiosCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "studios",
		Short: "List connected Roblox Studio instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, status, err := get(cmd.Context(), "/api/studios", nil)
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return apiError(status, body)
			}
			if asJSON {
				_, err := os.Stdout.Write(body)
				return err
			}

			var studios []gateway.StudioResponse
			if err := json.Unmarshal(body, &studios); err != nil {
				return fmt.Errorf("decoding studios: %w", err)
			}
			if len(studios) == 0 {
				color.New(color.FgHiBlack).Println("No studios connected.")
				return nil
			}

			bold := color.New(color.Bold)
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			bold.Fprintln(tw, "ID\tPLACE\tPLACE ID\tTRANSPORT\tCONNECTED")
			for _, s := range studios {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", s.StudioID, s.PlaceName, s.PlaceID, s.Transport, s.ConnectedAt)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON response")
	return cmd
}

func historyCmd() *cobra.Command {
	var (
		limit    int
		kind     string
		studioID string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent studio and dispatch events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(limit))
			if kind != "" {
				q.Set("kind", kind)
			}
			if studioID != "" {
				q.Set("studio_id", studioID)
			}

			body, status, err := get(cmd.Context(), "/api/history", q)
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return apiError(status, body)
			}

			var entries []store.Entry
			if err := json.Unmarshal(body, &entries); err != nil {
				return fmt.Errorf("decoding history: %w", err)
			}
			for _, e := range entries {
				printEntry(e)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum entries to show")
	cmd.Flags().StringVar(&kind, "kind", "", "filter by kind (connected, disconnected, dispatch)")
	cmd.Flags().StringVar(&studioID, "studio", "", "filter by studio id")
	return cmd
}

func printEntry(e store.Entry) {
	gray := color.New(color.FgHiBlack)
	gray.Printf("%s ", e.Timestamp.Local().Format("2006-01-02 15:04:05"))

	switch e.Kind {
	case store.KindConnected:
		color.New(color.FgGreen).Print("connected    ")
		fmt.Printf("%s %q via %s\n", e.StudioID, e.PlaceName, e.Transport)
	case store.KindDisconnected:
		color.New(color.FgYellow).Print("disconnected ")
		fmt.Printf("%s %q", e.StudioID, e.PlaceName)
		if e.FailedRequests > 0 {
			fmt.Printf(" (%d requests failed)", e.FailedRequests)
		}
		fmt.Println()
	default:
		c := color.New(color.FgCyan)
		if e.Outcome != "ok" {
			c = color.New(color.FgRed)
		}
		c.Printf("%-13s", string(e.Kind))
		fmt.Printf("%s %s -> %s %dms\n", e.Tool, e.StudioID, e.Outcome, e.DurationMS)
	}
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an MCP client",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			_, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not configured")
			}
			verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
			if err != nil {
				return fmt.Errorf("creating JWT verifier: %w", err)
			}
			token, err := verifier.Generate(subject, ttl)
			if err != nil {
				return fmt.Errorf("generating token: %w", err)
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject, the MCP session owner")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
