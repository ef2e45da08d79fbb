// Command lanepilot drives the vehicle: it captures frames, runs perception,
// steers with the PID controller and records every run to SQLite.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/lanepilot/internal/actuation"
	"github.com/banshee-data/lanepilot/internal/announce"
	"github.com/banshee-data/lanepilot/internal/api"
	"github.com/banshee-data/lanepilot/internal/camera"
	"github.com/banshee-data/lanepilot/internal/classify"
	"github.com/banshee-data/lanepilot/internal/config"
	"github.com/banshee-data/lanepilot/internal/db"
	"github.com/banshee-data/lanepilot/internal/health"
	"github.com/banshee-data/lanepilot/internal/monitoring"
	"github.com/banshee-data/lanepilot/internal/pilot"
	"github.com/banshee-data/lanepilot/internal/sim"
	"github.com/banshee-data/lanepilot/internal/version"
)

var (
	simMode    = flag.Bool("sim", false, "Drive a synthetic course instead of the camera")
	course     = flag.String("course", "", "Synthetic course, e.g. barrier:30,clear:5,lane:120 (implies -sim)")
	replayDir  = flag.String("replay", "", "Replay PNG/JPEG frames from this directory")
	replayLoop = flag.Bool("loop", false, "Loop the replay or synthetic course")

	serialPort = flag.String("serial", "/dev/ttyUSB0", "Actuation serial port")
	baudRate   = flag.Int("baud", 115200, "Serial baud rate")
	dataBits   = flag.Int("data-bits", 8, "Serial data bits")
	stopBits   = flag.Int("stop-bits", 1, "Serial stop bits")
	parity     = flag.String("parity", "N", "Serial parity (N, E, O, M, S)")

	configPath = flag.String("config", "", "Tuning config file (.json or .yaml); empty uses built-in defaults")
	dbPath     = flag.String("db", "lanepilot.db", "Run telemetry database; empty disables recording")
	listen     = flag.String("listen", ":8080", "HTTP listen address; empty disables the status API")
	grpcListen = flag.String("grpc-listen", ":50051", "gRPC health listen address; empty disables it")
	logLevel   = flag.String("log-level", "ops", "Log level: ops, diag or trace")

	assetsDir     = flag.String("assets", "", "Directory of announcement audio <category>/<name>.<ext>; empty only logs cues")
	playerCmd     = flag.String("player", "mpg123 -q", "Command used to play announcement audio")
	classifierURL = flag.String("classifier-url", "", "Route classifier endpoint; empty disables classification")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

const shutdownTimeout = 5 * time.Second

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get())
		return
	}

	level, err := monitoring.ParseLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	pilot.ConfigureLogging(monitoring.WritersForLevel(level, os.Stderr))

	if args := flag.Args(); len(args) > 0 {
		if args[0] != "migrate" {
			log.Fatalf("unknown command %q", args[0])
		}
		if err := runMigrate(*dbPath, args[1:]); err != nil {
			log.Fatal(err)
		}
		return
	}

	if err := run(); err != nil {
		log.Fatal(err)
	}
	log.Printf("Graceful shutdown complete")
}

func run() error {
	tuning := config.DefaultTuningConfig()
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			return fmt.Errorf("failed to load tuning config: %w", err)
		}
	}

	mode, source, driver, err := selectDriver()
	if err != nil {
		return err
	}

	var gateway actuation.Gateway
	if mode == "sim" {
		gateway = actuation.NewRecordingGateway(tuning.GetMotorStationaryLevel(), 256)
	} else {
		gateway = actuation.NewSerialGateway(*serialPort, actuation.PortOptions{
			BaudRate: *baudRate,
			DataBits: *dataBits,
			StopBits: *stopBits,
			Parity:   *parity,
		}, actuation.DefaultCalibration(), nil)
	}

	var player announce.Player = announce.LogPlayer{}
	if *assetsDir != "" {
		player = announce.CommandPlayer{Dir: *assetsDir, Command: strings.Fields(*playerCmd)}
	}
	announcer := announce.NewAsync(player, 8, 10*time.Second)
	defer announcer.Close()

	var classifier classify.Classifier
	if *classifierURL != "" {
		classifier = classify.NewHTTPClassifier(*classifierURL, &http.Client{})
	}

	var store *db.DB
	if *dbPath != "" {
		store, err = db.NewDB(*dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()
	}

	hs := health.NewServer()
	p, err := pilot.New(pilot.Options{
		Tuning:     tuning,
		Driver:     driver,
		Gateway:    gateway,
		Classifier: classifier,
		Announcer:  announcer,
		Store:      store,
		Health:     hs,
		Mode:       mode,
		Source:     source,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log.Printf("%s starting in %s mode", version.Get(), mode)

	var wg sync.WaitGroup
	serveCtx, stopServing := context.WithCancel(ctx)
	defer stopServing()

	if *grpcListen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := hs.ListenAndServe(serveCtx, *grpcListen); err != nil {
				log.Printf("health server: %v", err)
			}
		}()
	}

	if *listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := serveHTTP(serveCtx, *listen, p, store); err != nil {
				log.Printf("HTTP server: %v", err)
			}
		}()
	}

	runErr := p.Run(ctx)
	if runErr == nil {
		log.Printf("run %s complete", p.RunID())
	}

	// keep serving the finished run until interrupted
	if *listen != "" && ctx.Err() == nil && runErr == nil {
		log.Printf("run finished; status API stays up until interrupted")
		<-ctx.Done()
	}
	stopServing()
	wg.Wait()
	return runErr
}

// selectDriver picks the frame source from the flags.
func selectDriver() (mode, source string, driver camera.Driver, err error) {
	switch {
	case *replayDir != "" && (*simMode || *course != ""):
		return "", "", nil, errors.New("-replay cannot be combined with -sim or -course")
	case *replayDir != "":
		return "replay", *replayDir, camera.NewReplayDriver(*replayDir, *replayLoop), nil
	case *simMode || *course != "":
		scene := sim.DefaultCourse()
		source = "default"
		if *course != "" {
			scene, err = sim.ParseCourse(*course)
			if err != nil {
				return "", "", nil, err
			}
			source = *course
		}
		scene.Loop = *replayLoop
		return "sim", source, sim.NewDriver(scene), nil
	default:
		return "", "", nil, errors.New("no camera driver is built in; use -sim, -course or -replay")
	}
}

func serveHTTP(ctx context.Context, addr string, p *pilot.Pilot, store *db.DB) error {
	mux := http.NewServeMux()
	tsweb.Debugger(mux)
	if store != nil {
		// admin routes are only reachable from loopback or over Tailscale
		if err := store.AttachAdminRoutes(mux); err != nil {
			return err
		}
	}

	var runs api.RunStore
	if store != nil {
		runs = store
	}
	mux.Handle("/", api.NewServer(p, runs).ServeMux())

	server := &http.Server{
		Addr:              addr,
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	log.Printf("status API listening on %s", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage:
  lanepilot [flags]                     run the mission
  lanepilot [flags] migrate <command>   manage the telemetry schema

Migrate commands: up, down, version, force <version>

Flags:
`)
	flag.PrintDefaults()
}
