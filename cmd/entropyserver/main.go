// Command entropyserver hosts C5 (the ingestion gRPC-style server), the
// management RPC surface over C7 (the validation orchestrator and its
// scheduler), and C8 (the kernel feeder) as goroutines sharing one
// context.Context lifetime, grounded on
// chromeperf/pinpoint/server.Main()'s flag-configured net.Listen +
// grpc.NewServer() + health.NewServer() bootstrap.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/spanner"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"entropysvc/internal/controlserver"
	"entropysvc/internal/entropypb"
	"entropysvc/internal/eventstore"
	"entropysvc/internal/feeder"
	"entropysvc/internal/identity"
	"entropysvc/internal/ingest"
	"entropysvc/internal/ingestserver"
	"entropysvc/internal/orchestrator"
	"entropysvc/internal/resultstore"
	"entropysvc/internal/validators"
)

var (
	port = flag.String("port", ":60900", "listen address for the gRPC-style server")

	spannerDB = flag.String("spanner_database", "", "fully qualified Spanner database path (projects/.../instances/.../databases/...)")

	suite22URL  = flag.String("suite22_url", "", "base URL of the SP 800-22 validation service")
	assessorURL = flag.String("assessor90b_url", "", "base URL of the SP 800-90B assessment service")

	serviceAccountKeyFile = flag.String("service_account_key_file", "", "path to a JSON service account key, used to mint outbound validator bearer tokens when no caller token is propagated")

	maxParallelJobs = flag.Int("max_parallel_jobs", 4, "bound on concurrently running validation jobs (spec §6 operator knob)")
	queueCapacity   = flag.Int("queue_capacity", ingestserver.DefaultQueueCapacity, "bounded in-process ingestion queue capacity Q")
	subscriberRate  = flag.Float64("subscriber_rate", ingestserver.DefaultSubscriberRate, "per-session subscriber fan-out rate, batches/second")
	expectedRateHz  = flag.Float64("expected_rate_hz", ingestserver.DefaultExpectedRateHz, "expected gateway event rate pushed via ConfigUpdate on Hello")

	hourlyCron = flag.String("suite22_cron", "", "cron expression for scheduled SP 800-22 runs (default: hourly)")
	weeklyCron = flag.String("assessor90b_cron", "", "cron expression for scheduled SP 800-90B runs (default: weekly)")

	entropyDevice = flag.String("entropy_device", "/dev/random", "OS entropy device C8 writes whitened bytes to")
	feederPeriod  = flag.Duration("feeder_period", 0, "C8 tick period (default: feeder.DefaultPeriod)")
)

func main() {
	flag.Parse()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	spannerClient, err := spanner.NewClient(ctx, *spannerDB)
	if err != nil {
		log.Fatalf("connecting to spanner: %v", err)
	}
	defer spannerClient.Close()

	events := eventstore.New(spannerClient)
	results := resultstore.New(spannerClient)
	pipeline := ingest.New(spannerClient)

	var svcTokens *identity.ServiceTokenSource
	if *serviceAccountKeyFile != "" {
		keyBytes, err := os.ReadFile(*serviceAccountKeyFile)
		if err != nil {
			log.Fatalf("reading service account key: %v", err)
		}
		svcTokens, err = identity.NewServiceTokenSource(ctx, keyBytes,
			"https://www.googleapis.com/auth/userinfo.email")
		if err != nil {
			log.Fatalf("building service token source: %v", err)
		}
	}

	suite22 := validators.NewHTTPSuite22Client(*suite22URL)
	assessor := validators.NewHTTPAssessor90BClient(*assessorURL)

	orch, err := orchestrator.New(events, results, suite22, assessor, svcTokens, orchestrator.DefaultConfig(), *maxParallelJobs)
	if err != nil {
		log.Fatalf("building orchestrator: %v", err)
	}
	if recovered, err := orch.RecoverAtStartup(ctx); err != nil {
		log.Fatalf("recovering orphaned jobs: %v", err)
	} else if recovered > 0 {
		log.Printf("entropyserver: recovered %d orphaned job(s) as FAILED", recovered)
	}

	sched, err := orchestrator.NewScheduler(orch, *hourlyCron, *weeklyCron)
	if err != nil {
		log.Fatalf("building scheduler: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	verifier := identity.HeaderVerifier{}

	device, err := os.OpenFile(*entropyDevice, os.O_WRONLY, 0)
	if err != nil {
		log.Fatalf("opening entropy device %s: %v", *entropyDevice, err)
	}
	defer device.Close()
	kernelFeeder := feeder.New(events, device)

	period := *feederPeriod
	if period <= 0 {
		period = feeder.DefaultPeriod
	}
	go kernelFeeder.Run(ctx, period)

	lis, err := net.Listen("tcp", *port)
	if err != nil {
		log.Fatalf("listening on %s: %v", *port, err)
	}

	grpcServer := grpc.NewServer()
	ingestSrv := ingestserver.NewServer(pipeline, verifier, *queueCapacity, *subscriberRate, *expectedRateHz)
	entropypb.RegisterEntropyIngestServer(grpcServer, ingestSrv)
	controlSrv := controlserver.NewServer(orch, verifier)
	entropypb.RegisterEntropyControlServer(grpcServer, controlSrv)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(grpcServer, healthSrv)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Print("entropyserver: shutting down")
		grpcServer.GracefulStop()
		cancel()
	}()

	log.Printf("entropyserver: listening on %s", *port)
	if err := grpcServer.Serve(lis); err != nil {
		log.Fatalf("serving: %v", err)
	}
}
