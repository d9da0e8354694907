// Command dvbctl tunes a single local DVB frontend from the command line,
// prints the resulting monitor snapshot, and exits — useful for bench
// testing a tuner without running the full daemon.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mpostema/dvbstreamer/internal/frontend"
	"github.com/mpostema/dvbstreamer/internal/frontenddata"
	"github.com/mpostema/dvbstreamer/internal/logging"
)

func main() {
	adapter := flag.Int("adapter", 0, "DVB adapter number")
	feNum := flag.Int("frontend", 0, "Frontend number within the adapter")
	root := flag.String("root", "/dev/dvb", "Root of the DVB adapter device tree")
	query := flag.String("tune", "", "Stream request query string, e.g. freq=11493000&msys=dvbs2&pol=h&sr=22000000&pids=0,100,101")
	waitMS := flag.Int("wait-ms", 3500, "Milliseconds to wait for a lock")
	pollEvery := flag.Duration("poll", time.Second, "Signal poll interval while waiting")
	pollFor := flag.Duration("duration", 5*time.Second, "How long to keep polling and printing signal quality after tuning")
	flag.Parse()

	if *query == "" {
		fmt.Fprintln(os.Stderr, "missing -tune query string")
		os.Exit(2)
	}

	logger := logging.New(logging.Info, logging.Text, os.Stderr)

	paths := frontend.Paths{
		Frontend: fmt.Sprintf("%s/adapter%d/frontend%d", *root, *adapter, *feNum),
		Demux:    fmt.Sprintf("%s/adapter%d/demux%d", *root, *adapter, *feNum),
		DVR:      fmt.Sprintf("%s/adapter%d/dvr%d", *root, *adapter, *feNum),
	}

	fe := frontend.New(0, paths, logger)
	fe.SetWaitOnLockTimeout(time.Duration(*waitMS) * time.Millisecond)

	if err := fe.Setup(); err != nil {
		fmt.Fprintf(os.Stderr, "setup: %v\n", err)
		os.Exit(1)
	}

	if err := fe.ParseStreamString(*query, frontenddata.MethodPlay); err != nil {
		fmt.Fprintf(os.Stderr, "parse stream string: %v\n", err)
		os.Exit(1)
	}

	locked, err := fe.Update()
	if err != nil {
		fmt.Fprintf(os.Stderr, "tune: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("state=%s locked=%v\n", fe.State(), locked)

	deadline := time.Now().Add(*pollFor)
	ticker := time.NewTicker(*pollEvery)
	defer ticker.Stop()
	for time.Now().Before(deadline) {
		<-ticker.C
		snap := fe.MonitorSignal()
		fmt.Printf("strength=%d/240 snr=%d/15 ber=%d uncorrected=%d\n",
			snap.Strength0To240, snap.SNR0To15, snap.BER, snap.UncorrectedBlocks)
	}

	fe.Teardown()
}
