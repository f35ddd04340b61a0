package cmd

import (
	"fmt"

	"dnsflow/internal/pkg/filterexpr"

	"github.com/spf13/cobra"
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Print the packet filter expression for a given configuration",
	Long:  `filter prints the BPF-style expression that run would install for the given shard and encapsulation flags, without opening a capture. Useful for validating a filter before deploying.`,
	RunE:  printFilter,
}

var (
	filterEncapOffset int
	filterWorkerIndex int
	filterNWorkers    int
	filterEnableMDNS  bool
	filterPcapRecPort int
	filterJMirrorPort int
)

func init() {
	filterCmd.Flags().IntVarP(&filterWorkerIndex, "shard-index", "i", 1, "1-based worker index")
	filterCmd.Flags().IntVarP(&filterNWorkers, "shard-count", "n", 1, "total worker count")
	filterCmd.Flags().BoolVarP(&filterEnableMDNS, "mdns", "Y", false, "also match mDNS (port 5353)")
	filterCmd.Flags().IntVarP(&filterPcapRecPort, "pcap-record-port", "X", 0, "pcap-record+ethernet encap port")
	filterCmd.Flags().IntVarP(&filterJMirrorPort, "jmirror-port", "J", 0, "JMirror encap port")
}

func printFilter(cmd *cobra.Command, args []string) error {
	encapOffset := 0
	switch {
	case filterJMirrorPort != 0:
		encapOffset = jmirrorEncapLen
	case filterPcapRecPort != 0:
		encapOffset = pcapRecordEncapLen
	}

	expr := filterexpr.Build(filterexpr.Params{
		EncapOffset: encapOffset,
		WorkerIndex: filterWorkerIndex,
		NWorkers:    filterNWorkers,
		EnableMDNS:  filterEnableMDNS,
	})
	fmt.Fprintln(cmd.OutOrStdout(), expr)
	return nil
}
