package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	serverURL      = flag.String("server", "ws://localhost:9000/ocpp", "Central system WebSocket URL")
	chargePointID  = flag.String("id", "CP001", "Charge point ID")
	vendor         = flag.String("vendor", "VirtualEVSE", "Charge point vendor")
	model          = flag.String("model", "SimulatorV1", "Charge point model")
	serial         = flag.String("serial", "SIM001", "Serial number")
	firmware       = flag.String("firmware", "1.0.0", "Firmware version")
	connectorCount = flag.Int("connectors", 2, "Number of connectors")
	interactive    = flag.Bool("interactive", false, "Enable interactive mode")
	verbose        = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	// Setup logger
	zc := zap.NewDevelopmentConfig()
	if !*verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	logger, err := zc.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Create simulator config
	config := &SimulatorConfig{
		ServerURL:       *serverURL,
		ChargePointID:   *chargePointID,
		Vendor:          *vendor,
		Model:           *model,
		SerialNumber:    *serial,
		FirmwareVersion: *firmware,
		ConnectorCount:  *connectorCount,
	}

	// Create and start simulator
	simulator := NewSimulator(config, logger)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down simulator...")
		simulator.Stop()
		os.Exit(0)
	}()

	// Connect to the central system
	if err := simulator.Connect(); err != nil {
		logger.Fatal("Failed to connect to central system", zap.Error(err))
	}

	// Start the simulator
	if *interactive {
		runInteractiveMode(simulator)
	} else {
		// Run in background mode
		fmt.Printf("OCPP 1.6 Charge Point Simulator started\n")
		fmt.Printf("  ID: %s\n", *chargePointID)
		fmt.Printf("  Server: %s\n", *serverURL)
		fmt.Printf("  Connectors: %d\n", *connectorCount)
		fmt.Println("\nPress Ctrl+C to stop")

		// Keep running
		select {}
	}
}

func runInteractiveMode(sim *Simulator) {
	fmt.Println("\nOCPP 1.6 Charge Point Simulator - Interactive Mode")
	fmt.Println("==================================================")
	fmt.Println("Commands:")
	fmt.Println("  auth <idTag>               - Send Authorize for a tag")
	fmt.Println("  start <connector> <idTag>  - Plug in and start a transaction")
	fmt.Println("  stop                       - Stop the running transaction")
	fmt.Println("  status <connector> <state> - Send a StatusNotification")
	fmt.Println("  fault [connector]          - Report a faulted connector")
	fmt.Println("  meter <wh> [connector]     - Send a meter reading (Wh)")
	fmt.Println("  mac <address>              - Push the vehicle MAC (MacID)")
	fmt.Println("  heartbeat                  - Send a heartbeat")
	fmt.Println("  exit                       - Quit the simulator")
	fmt.Println("")

	sim.RunInteractive()
}
