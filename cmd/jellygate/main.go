package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/jellygate/internal/config"
	"github.com/saltyorg/jellygate/internal/credentials"
	"github.com/saltyorg/jellygate/internal/database"
	"github.com/saltyorg/jellygate/internal/jellyfin"
	"github.com/saltyorg/jellygate/internal/librarysync"
	"github.com/saltyorg/jellygate/internal/logging"
	"github.com/saltyorg/jellygate/internal/repository"
	"github.com/saltyorg/jellygate/internal/session"
	"github.com/saltyorg/jellygate/internal/socket"
	"github.com/saltyorg/jellygate/internal/web"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI flags
var (
	port        int
	bind        string
	allowSubnet string
	dbPath      string
	verbosity   int

	// Timeout flags (advanced)
	httpTimeout   time.Duration
	websocketPing time.Duration
	loginTimeout  time.Duration

	// Login flags
	loginServer   string
	loginUsername string
	loginPassword string
	loginRemember bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "jellygate",
		Short: "Jellygate - Jellyfin session gateway",
		Long:  `Jellygate is a headless gateway that keeps a Jellyfin session fresh and exposes the library over a local HTTP API.`,
		RunE:  run,
	}

	// Flags
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "./jellygate.db", "SQLite database path (or set DB_PATH env var)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")
	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP server port (required, or set PORT env var)")
	rootCmd.Flags().StringVarP(&bind, "bind", "b", "", "IP address to bind to (e.g., 127.0.0.1, 0.0.0.0)")
	rootCmd.Flags().StringVarP(&allowSubnet, "allow-subnet", "a", "", "CIDR subnet allowed to connect (e.g., 192.168.1.0/24)")

	// Advanced timeout flags
	rootCmd.Flags().DurationVar(&httpTimeout, "http-timeout", 30*time.Second, "Timeout for HTTP requests to the Jellyfin server")
	rootCmd.Flags().DurationVar(&websocketPing, "websocket-ping", 30*time.Second, "Interval between WebSocket keepalive pings")
	rootCmd.Flags().DurationVar(&loginTimeout, "login-timeout", 60*time.Second, "Timeout for a full sign-in round trip")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("jellygate %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to a Jellyfin server and store the session",
		RunE:  runLogin,
	}
	loginCmd.Flags().StringVar(&loginServer, "server", "", "Jellyfin server URL (required)")
	loginCmd.Flags().StringVar(&loginUsername, "username", "", "Jellyfin username (required)")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Jellyfin password (read from stdin when omitted)")
	loginCmd.Flags().BoolVar(&loginRemember, "remember", true, "Store the password for automatic re-authentication")
	rootCmd.AddCommand(loginCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the stored session",
		RunE:  runLogout,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the stored session state",
		RunE:  runStatus,
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// Check for PORT env var if flag not set
	if port == 0 {
		if envPort := os.Getenv("PORT"); envPort != "" {
			if _, err := fmt.Sscanf(envPort, "%d", &port); err != nil {
				return fmt.Errorf("invalid PORT environment variable %q: %w", envPort, err)
			}
		}
	}

	// Validate port
	if port == 0 {
		return fmt.Errorf("--port flag or PORT environment variable is required")
	}

	// Validate bind address if provided
	if bind != "" {
		if ip := net.ParseIP(bind); ip == nil {
			return fmt.Errorf("invalid bind address: %s", bind)
		}
	}

	// Validate and parse allow-subnet if provided
	var allowedNet *net.IPNet
	if allowSubnet != "" {
		_, parsedNet, err := net.ParseCIDR(allowSubnet)
		if err != nil {
			return fmt.Errorf("invalid allow-subnet CIDR: %s", allowSubnet)
		}
		allowedNet = parsedNet
	}

	// Setup console logging before the database is available
	setupLogging(verbosity)

	// Configure global timeouts
	config.SetGlobalTimeouts(&config.TimeoutConfig{
		HTTPClient:    httpTimeout,
		WebSocketPing: websocketPing,
		Login:         loginTimeout,
	})

	// Warn if binding to all interfaces without an allow list
	if (bind == "" || bind == "0.0.0.0" || bind == "::") && allowSubnet == "" {
		log.Warn().Msg("Server is accessible from all interfaces without subnet restrictions. Consider using --bind or --allow-subnet for security.")
	}

	log.Info().
		Str("version", version).
		Int("port", port).
		Str("bind", bind).
		Str("allow_subnet", allowSubnet).
		Str("database", dbPath).
		Msg("Starting Jellygate")

	app, err := openApp()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer app.Close()

	// Switch to the full logging setup now that settings are readable
	applyLogging(app)

	// Restore the saved session; the first request re-authenticates if the
	// token is stale or missing
	if err := app.repo.Restore(); err != nil {
		log.Warn().Err(err).Msg("Failed to restore saved session")
	}

	// Create web server with bind address and allowed subnet
	server, err := web.NewServer(app.db, app.repo, app.holder, port, bind, allowedNet)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize web server")
	}

	sseBroker := server.SSEBroker()
	app.repo.SetBroker(sseBroker)

	// Library sync keeps the cached view list fresh
	syncMgr := librarysync.New(app.db, app.loader, app.repo)
	syncMgr.SetBroker(sseBroker)
	server.SetSyncManager(syncMgr)
	syncMgr.Start()
	defer syncMgr.Stop()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Watch the server's event socket for library and user data changes
	watcher := socket.New(app.repo, app.holder, sseBroker, syncMgr)
	go watcher.Run(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	// Start server
	if err := server.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}

	log.Info().Msg("Jellygate stopped")
	return nil
}

// app bundles the pieces shared by the serve, login, logout, and status
// commands.
type app struct {
	db     *database.DB
	loader *config.Loader
	holder *session.Holder
	repo   *repository.Repository
}

func openApp() (*app, error) {
	// Check for DB_PATH env var if using default
	if dbPath == "./jellygate.db" {
		if envDB := os.Getenv("DB_PATH"); envDB != "" {
			dbPath = envDB
		}
	}

	db, err := database.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	if err := db.InitializeDefaults(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize default settings: %w", err)
	}

	loader := config.NewLoader(db)

	device, err := deviceIdentity(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	creds, err := credentials.Open(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	holder := session.NewHolder()
	factory := jellyfin.NewFactory(device)
	repo := repository.New(db, loader, holder, creds, factory)

	return &app{db: db, loader: loader, holder: holder, repo: repo}, nil
}

func (a *app) Close() {
	if err := a.db.Optimize(); err != nil {
		log.Debug().Err(err).Msg("Failed to optimize database on close")
	}
	a.db.Close()
}

// deviceIdentity returns this gateway's device identity, generating and
// persisting a device ID on first run.
func deviceIdentity(db *database.DB) (jellyfin.DeviceInfo, error) {
	deviceID, err := db.GetSetting("device.id")
	if err != nil {
		return jellyfin.DeviceInfo{}, fmt.Errorf("failed to load device ID: %w", err)
	}
	if deviceID == "" {
		deviceID = uuid.NewString()
		if err := db.SetSetting("device.id", deviceID); err != nil {
			return jellyfin.DeviceInfo{}, fmt.Errorf("failed to store device ID: %w", err)
		}
	}

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "jellygate"
	}

	return jellyfin.DeviceInfo{
		Client:   "Jellygate",
		Device:   hostname,
		DeviceID: deviceID,
		Version:  version,
	}, nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	if loginServer == "" || loginUsername == "" {
		return fmt.Errorf("--server and --username are required")
	}

	setupLogging(verbosity)

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	password := loginPassword
	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.GetTimeouts().Login)
	defer cancel()

	sess, err := app.repo.Login(ctx, loginServer, loginUsername, password, loginRemember)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Printf("Signed in to %s as %s\n", sess.ServerURL, sess.Username)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	setupLogging(verbosity)

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.repo.Restore(); err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}
	if !app.repo.Session().Authenticated() {
		fmt.Println("Not signed in")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.GetTimeouts().HTTPClient)
	defer cancel()

	if err := app.repo.Logout(ctx); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}

	fmt.Println("Signed out")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	setupLogging(verbosity)

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.repo.Restore(); err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}

	status := app.repo.Status()
	if !status.Authenticated {
		fmt.Println("Not signed in")
		return nil
	}

	fmt.Printf("Server:    %s\n", status.ServerURL)
	fmt.Printf("Username:  %s\n", status.Username)
	fmt.Printf("User ID:   %s\n", status.UserID)
	fmt.Printf("Login at:  %s\n", status.LoginAt.Format(time.RFC3339))
	if status.Expired {
		fmt.Println("Session:   stale (will re-authenticate on next request)")
	} else {
		fmt.Println("Session:   fresh")
	}
	return nil
}

// applyLogging switches to the settings-driven logging setup with file
// rotation. Verbosity flags take precedence over the stored level.
func applyLogging(a *app) {
	level := ""
	switch {
	case verbosity == 1:
		level = "debug"
	case verbosity >= 2:
		level = "trace"
	default:
		level = a.loader.String("log.level", "info")
	}
	logging.Apply(level, a.loader, logging.FilePathForDB(dbPath))
}

func setupLogging(verbosity int) {
	// Pretty console output
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"}

	switch verbosity {
	case 0:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case 1:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default: // 2+
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}
