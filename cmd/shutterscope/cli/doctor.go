package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/shutterscope/shutterscope/internal/client"
)

// tokenExpiryWarning is how close to expiry a token triggers a warning.
const tokenExpiryWarning = 10 * time.Minute

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks against a shutterscope server",
	Long: `Run a series of diagnostic checks against a shutterscope server:

  1. Server reachability: can we connect at all?
  2. Server health: is the /health endpoint reporting OK?
  3. Database: is the results database reachable?
  4. Authentication: is the stored token valid?
  5. Token expiry: is the token close to expiration?

Examples:
  shutterscope doctor
  shutterscope doctor --server https://scope.example.com`,
	RunE: runDoctor,
}

type checkResult struct {
	name   string
	ok     bool
	detail string
	warn   bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	server, err := resolveServer()
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Running health checks against %s\n\n", server)

	checks := doctorChecks(cmd.Context(), server)
	if !printChecks(cmd.OutOrStdout(), checks) {
		return fmt.Errorf("health check failed")
	}
	return nil
}

func doctorChecks(ctx context.Context, server string) []checkResult {
	var checks []checkResult

	checks = append(checks, checkServerReachable(ctx, server))

	health, healthCheck := checkServerHealth(ctx, server)
	checks = append(checks, healthCheck)

	if health != nil {
		checks = append(checks, checkDatabaseHealth(health))
	} else {
		checks = append(checks, checkResult{
			name:   "Database",
			ok:     false,
			detail: "could not determine (health endpoint unreachable)",
		})
	}

	tokenData, authCheck := checkAuthentication(ctx, server)
	checks = append(checks, authCheck)

	if tokenData.Token != "" {
		checks = append(checks, checkTokenExpiry(tokenData.Token, time.Now()))
	} else {
		checks = append(checks, checkResult{
			name:   "Token Expiry",
			ok:     false,
			detail: "no token available",
		})
	}
	return checks
}

// printChecks writes one line per check and reports whether none failed.
func printChecks(out io.Writer, checks []checkResult) bool {
	fmt.Fprintln(out)
	allOK := true
	hasWarnings := false
	for _, c := range checks {
		icon := "✓"
		if !c.ok && !c.warn {
			icon = "✗"
			allOK = false
		} else if c.warn {
			icon = "⚠"
			hasWarnings = true
		}
		fmt.Fprintf(out, "  %s  %-20s %s\n", icon, c.name, c.detail)
	}

	fmt.Fprintln(out)
	switch {
	case allOK && !hasWarnings:
		fmt.Fprintf(os.Stderr, "All checks passed ✓\n")
	case allOK:
		fmt.Fprintf(os.Stderr, "Checks passed with warnings ⚠\n")
	default:
		fmt.Fprintf(os.Stderr, "Some checks failed ✗\n")
	}
	return allOK
}

func checkServerReachable(ctx context.Context, server string) checkResult {
	hc := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server+"/health", nil)
	if err != nil {
		return checkResult{name: "Reachability", detail: err.Error()}
	}

	start := time.Now()
	resp, err := hc.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return checkResult{
			name:   "Reachability",
			ok:     false,
			detail: fmt.Sprintf("cannot connect: %v", err),
		}
	}
	resp.Body.Close()

	return checkResult{
		name:   "Reachability",
		ok:     true,
		detail: fmt.Sprintf("connected (%dms)", elapsed.Milliseconds()),
	}
}

func checkServerHealth(ctx context.Context, server string) (*client.Health, checkResult) {
	health, err := client.New(server, client.WithHTTPClient(&http.Client{Timeout: 10 * time.Second})).Health(ctx)
	if err != nil {
		return nil, checkResult{
			name:   "Server Health",
			ok:     false,
			detail: fmt.Sprintf("health endpoint error: %v", err),
		}
	}

	detail := fmt.Sprintf("status=%s", health.Status)
	if health.Version != "" {
		detail += fmt.Sprintf(", version=%s", health.Version)
	}
	if health.Uptime != "" {
		detail += fmt.Sprintf(", uptime=%s", health.Uptime)
	}
	if health.Cache != "" {
		detail += fmt.Sprintf(", cache=%s", health.Cache)
	}

	return health, checkResult{
		name:   "Server Health",
		ok:     health.Status == "ok",
		detail: detail,
	}
}

func checkDatabaseHealth(health *client.Health) checkResult {
	if health.Database.Status == "" {
		return checkResult{
			name:   "Database",
			ok:     false,
			detail: "no database status reported",
		}
	}

	detail := fmt.Sprintf("status=%s", health.Database.Status)
	if health.Database.Driver != "" {
		detail += fmt.Sprintf(", driver=%s", health.Database.Driver)
	}
	if health.Database.Error != "" {
		detail += fmt.Sprintf(", %s", health.Database.Error)
	}

	return checkResult{
		name:   "Database",
		ok:     health.Database.Status == "ok",
		detail: detail,
	}
}

func checkAuthentication(ctx context.Context, server string) (TokenData, checkResult) {
	tokenData, err := LoadToken()
	if err != nil {
		return TokenData{}, checkResult{
			name:   "Authentication",
			ok:     false,
			detail: "not logged in (run 'shutterscope login')",
		}
	}

	if strings.TrimRight(tokenData.Server, "/") != strings.TrimRight(server, "/") {
		return tokenData, checkResult{
			name:   "Authentication",
			ok:     false,
			warn:   true,
			detail: fmt.Sprintf("token is for %s, not %s", tokenData.Server, server),
		}
	}

	c := client.New(server,
		client.WithToken(tokenData.Token),
		client.WithHTTPClient(&http.Client{Timeout: 10 * time.Second}),
	)
	me, err := c.Me(ctx)
	if err != nil {
		return tokenData, checkResult{
			name:   "Authentication",
			ok:     false,
			detail: fmt.Sprintf("token invalid: %v", err),
		}
	}

	return tokenData, checkResult{
		name:   "Authentication",
		ok:     true,
		detail: fmt.Sprintf("authenticated as %s (%s)", me.Username, me.Role),
	}
}

// checkTokenExpiry reads the exp claim without verifying the signature;
// the server already vouched for the token in checkAuthentication.
func checkTokenExpiry(token string, now time.Time) checkResult {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return checkResult{
			name:   "Token Expiry",
			ok:     true,
			warn:   true,
			detail: "could not decode token claims",
		}
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return checkResult{
			name:   "Token Expiry",
			ok:     true,
			warn:   true,
			detail: "could not parse token claims",
		}
	}
	if exp == nil {
		return checkResult{
			name:   "Token Expiry",
			ok:     true,
			detail: "token has no expiry (non-expiring token)",
		}
	}

	if now.After(exp.Time) {
		return checkResult{
			name:   "Token Expiry",
			ok:     false,
			detail: fmt.Sprintf("token expired at %s (re-run 'shutterscope login')", exp.Time.Format(time.RFC3339)),
		}
	}

	detail := fmt.Sprintf("expires %s (%s)", exp.Time.Format(time.RFC3339), humanize.RelTime(exp.Time, now, "ago", "from now"))
	if exp.Time.Sub(now) < tokenExpiryWarning {
		return checkResult{
			name:   "Token Expiry",
			ok:     true,
			warn:   true,
			detail: detail + ", consider logging in again",
		}
	}

	return checkResult{
		name:   "Token Expiry",
		ok:     true,
		detail: detail,
	}
}
