package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"dnsflow/internal/pkg/cmdutil"
	"dnsflow/internal/pkg/emitter"
	"dnsflow/internal/pkg/encap"
	"dnsflow/internal/pkg/filterexpr"
	"dnsflow/internal/pkg/logger"
	"dnsflow/internal/pkg/metrics"
	"dnsflow/internal/pkg/pcapsource"
	"dnsflow/internal/pkg/signals"
	"dnsflow/internal/pkg/worker"

	"github.com/google/gopacket/pcapgo"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture DNS traffic and emit flow datagrams",
	Long:  `run captures DNS responses from a live interface or a capture file, summarizes successful recursive A-record responses, and emits flow datagrams over UDP and/or to a capture file.`,
	RunE:  runDNSFlow,
}

// pcapRecordEncapLen and jmirrorEncapLen mirror dnsflow.c's encap_offset
// derivation for -X/-J: the byte distance from the end of the outer UDP
// header to the inner IP header.
const (
	pcapRecordEncapLen = 16 + 14 // sizeof(pcap_sf_pkthdr) + sizeof(ether_header)
	jmirrorEncapLen    = 8       // sizeof(jmirror_hdr)
)

var (
	runInterface   string
	runReadFile    string
	runFilter      string
	runShardSpec   string
	runAutoFork    int
	runNonPromisc  bool
	runPidFile     string
	runSampleRate  int
	runUDPDests    []string
	runPcapRecPort int
	runJMirrorPort int
	runEnableMDNS  bool
	runWriteFile   string
	runMetricsAddr string
)

func init() {
	runCmd.Flags().StringVarP(&runInterface, "interface", "i", "", "interface to capture on")
	runCmd.Flags().StringVarP(&runReadFile, "read-file", "r", "", "read from a capture file instead of a live interface")
	runCmd.Flags().StringVarP(&runFilter, "filter", "f", "", "override the generated packet filter expression")
	runCmd.Flags().StringVarP(&runShardSpec, "shard", "m", "", "manual shard assignment, as i/n (1-based worker index / total workers)")
	runCmd.Flags().IntVarP(&runAutoFork, "auto-fork", "M", 0, "automatically fork n worker processes")
	runCmd.Flags().BoolVarP(&runNonPromisc, "no-promisc", "p", false, "disable promiscuous mode")
	runCmd.Flags().StringVarP(&runPidFile, "pid-file", "P", "", "write and lock a pid file")
	runCmd.Flags().IntVarP(&runSampleRate, "sample-rate", "s", 0, "process only every Nth captured frame")
	runCmd.Flags().StringArrayVarP(&runUDPDests, "udp-dst", "u", nil, "UDP destination IP for flow datagrams (repeatable, max 10)")
	runCmd.Flags().IntVarP(&runPcapRecPort, "pcap-record-port", "X", 0, "inbound port carrying a pcap-record+ethernet encapsulated stream")
	runCmd.Flags().IntVarP(&runJMirrorPort, "jmirror-port", "J", 0, "inbound port carrying a JMirror encapsulated stream (usually 30030)")
	runCmd.Flags().BoolVarP(&runEnableMDNS, "mdns", "Y", false, "also match mDNS (port 5353) traffic in the generated filter")
	runCmd.Flags().StringVarP(&runWriteFile, "write-file", "w", "", "write flow datagrams to a capture file instead of/in addition to UDP")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (e.g. :9273); disabled if empty")
}

func runDNSFlow(cmd *cobra.Command, args []string) error {
	interfaceName := cmdutil.GetStringConfig("interface", runInterface)
	readFile := cmdutil.GetStringConfig("read-file", runReadFile)
	filterOverride := cmdutil.GetStringConfig("filter", runFilter)
	pidFilePath := cmdutil.GetStringConfig("pid-file", runPidFile)
	udpDests := cmdutil.GetStringSliceConfig("udp-dst", runUDPDests)
	writeFile := cmdutil.GetStringConfig("write-file", runWriteFile)
	metricsAddr := cmdutil.GetStringConfig("metrics-addr", runMetricsAddr)
	sampleRate := cmdutil.GetIntConfig("sample-rate", runSampleRate)
	promisc := !cmdutil.GetBoolConfig("no-promisc", runNonPromisc)
	autoFork := cmdutil.GetIntConfig("auto-fork", runAutoFork)
	enableMDNS := cmdutil.GetBoolConfig("mdns", runEnableMDNS)
	pcapRecordPort := cmdutil.GetIntConfig("pcap-record-port", runPcapRecPort)
	jmirrorPort := cmdutil.GetIntConfig("jmirror-port", runJMirrorPort)

	if len(udpDests) == 0 && writeFile == "" {
		return fmt.Errorf("config error: output destination missing, need at least one of --udp-dst or --write-file")
	}

	workerIndex, nWorkers, encapOffset, err := resolveSharding(runShardSpec, autoFork, writeFile)
	if err != nil {
		return err
	}

	isChild := false
	var supervisor *worker.Supervisor
	if idx, total, resolvedChild := worker.ResolveIndex(); resolvedChild {
		workerIndex, nWorkers, isChild = idx, total, true
	} else if runShardSpec == "" && autoFork > 1 {
		supervisor, err = worker.ForkWorkers(autoFork)
		if err != nil {
			return fmt.Errorf("fork workers: %w", err)
		}
		workerIndex, nWorkers = 1, autoFork
	}

	if pcapRecordPort != 0 {
		encapOffset = pcapRecordEncapLen
	}
	if jmirrorPort != 0 {
		encapOffset = jmirrorEncapLen
	}

	var pidFile *cmdutil.PIDFile
	if pidFilePath != "" && !isChild {
		pidFile, err = cmdutil.WritePIDFile(pidFilePath)
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		defer pidFile.Close()
	}

	filterExpr := filterOverride
	if filterExpr == "" {
		filterExpr = filterexpr.Build(filterexpr.Params{
			EncapOffset: encapOffset,
			WorkerIndex: workerIndex,
			NWorkers:    nWorkers,
			EnableMDNS:  enableMDNS,
		})
	}

	source, err := openSource(interfaceName, readFile, promisc)
	if err != nil {
		return fmt.Errorf("capture init error: %w", err)
	}
	if err := source.SetFilter(filterExpr); err != nil {
		return fmt.Errorf("capture init error: install filter: %w", err)
	}
	if s, ok := source.(samplingSource); ok && sampleRate > 1 {
		s.SetSampleRate(uint32(sampleRate))
		logger.Info("sample rate set", "rate", sampleRate)
	}

	var fileWriter emitter.FileWriter
	var rawFile *os.File
	if writeFile != "" {
		rawFile, err = os.Create(writeFile)
		if err != nil {
			return fmt.Errorf("config error: create capture file: %w", err)
		}
		fileWriter, err = emitter.NewFileWriter(pcapgo.NewWriter(rawFile))
		if err != nil {
			rawFile.Close()
			return fmt.Errorf("config error: %w", err)
		}
	}

	em, err := emitter.New(udpDests, fileWriter)
	if err != nil {
		if rawFile != nil {
			rawFile.Close()
		}
		return fmt.Errorf("config error: %w", err)
	}
	defer em.Close()
	if rawFile != nil {
		defer rawFile.Close()
	}

	stripper := encap.Stripper{
		PcapRecordPort: uint16(pcapRecordPort),
		JMirrorPort:    uint16(jmirrorPort),
	}

	var exporter *metrics.Exporter
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cleanupSignals := signals.SetupHandler(ctx, cancel)
	defer cleanupSignals()

	var cleanupChild func()
	if supervisor != nil {
		cleanupChild = signals.SetupChildHandler(ctx, func(pid int) {
			logger.Info("child exited, shutting down worker group", "pid", pid)
			cancel()
		})
		defer cleanupChild()
	}

	if metricsAddr != "" {
		exporter = metrics.New(workerIndex)
		go func() {
			if err := exporter.Serve(ctx, metricsAddr); err != nil {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	var parentWatch *signals.ParentWatch
	if isChild {
		parentWatch = signals.NewParentWatch(func() {
			logger.Info("parent process disappeared, shutting down", "worker", workerIndex)
			cancel()
		})
	}

	logger.Info("dnsflow worker starting",
		"worker", workerIndex, "workers", nWorkers, "filter", filterExpr,
		"interface", interfaceName, "read_file", readFile)

	w := worker.New(worker.Config{
		Index:    workerIndex,
		NWorkers: nWorkers,
		Source:   source,
		Emitter:  em,
		Stripper: stripper,
		IsChild:  isChild,
		Metrics:  exporter,
	})

	runErr := w.Run(ctx, parentWatch)

	if supervisor != nil {
		supervisor.Signal(syscall.SIGTERM)
		supervisor.Wait()
	}

	if rawFile != nil {
		rawFile.Close()
	}

	if s, err := w.FinalStats(); err == nil {
		logger.Info("final stats",
			"captured", s.Captured, "received", s.Received,
			"dropped", s.Dropped, "ifdropped", s.IfDropped)
	}

	return runErr
}

// resolveSharding turns -m/-M into a (workerIndex, nWorkers) pair, applying
// the same config-error checks as the original's argument parser: an
// invalid -m spec, or -M combined with -w (auto-fork can't share a single
// capture-file writer across processes).
func resolveSharding(shardSpec string, autoFork int, writeFile string) (workerIndex, nWorkers, encapOffset int, err error) {
	if shardSpec != "" {
		i, n, perr := parseShardSpec(shardSpec)
		if perr != nil {
			return 0, 0, 0, fmt.Errorf("config error: %w", perr)
		}
		return i, n, 0, nil
	}
	if autoFork > 1 && writeFile != "" {
		return 0, 0, 0, fmt.Errorf("config error: can't use --write-file and --auto-fork together")
	}
	return 1, 1, 0, nil
}

func parseShardSpec(spec string) (i, n int, err error) {
	parts := strings.SplitN(spec, "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid shard spec %q, want i/n", spec)
	}
	i, err1 := strconv.Atoi(parts[0])
	n, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || n == 0 || i == 0 || i > n {
		return 0, 0, fmt.Errorf("invalid shard spec %q, want i/n", spec)
	}
	return i, n, nil
}

// samplingSource is implemented by both pcapsource.LiveSource and
// pcapsource.FileSource; -s/--sample-rate applies to either.
type samplingSource interface {
	SetSampleRate(rate uint32)
}

func openSource(interfaceName, readFile string, promisc bool) (pcapsource.Source, error) {
	if readFile != "" {
		return pcapsource.OpenFile(readFile)
	}
	return pcapsource.OpenLive(interfaceName, promisc)
}

