package entrypoint

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"dominicbreuker/msgsock/pkg/discovery"
	"dominicbreuker/msgsock/pkg/discovery/mdns"
	"dominicbreuker/msgsock/pkg/log"
)

// Browse lists the services of serviceType that answer within timeout as a
// table on out.
func Browse(ctx context.Context, serviceType string, timeout time.Duration, out io.Writer, logger *log.Logger) error {
	return browse(ctx, mdns.NewClient(logger), serviceType, timeout, out, logger)
}

func browse(ctx context.Context, b discovery.Browser, serviceType string, timeout time.Duration, out io.Writer, logger *log.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.VerboseMsg("browsing %s for %s", serviceType, timeout)
	services, err := b.Browse(ctx, serviceType)
	if err != nil {
		return fmt.Errorf("browse %s: %w", serviceType, err)
	}
	if len(services) == 0 {
		logger.InfoMsg("No %s services found\n", serviceType)
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTANCE\tADDRESS\tTXT")
	for _, svc := range services {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", svc.Instance, svc.Addr(), strings.Join(svc.Text, " "))
	}
	return tw.Flush()
}
