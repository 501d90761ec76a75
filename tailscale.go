package main

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"tailscale.com/client/tailscale"
)

// tsDiscover returns the addresses of all devices in the tailnet. The API key
// is read from TS_API_KEY.
func tsDiscover(ctx context.Context, tailnet string) ([]string, error) {
	tailscale.I_Acknowledge_This_API_Is_Unstable = true

	client := tailscale.NewClient(tailnet, tailscale.APIKey(os.Getenv("TS_API_KEY")))

	devices, err := client.Devices(ctx, tailscale.DeviceDefaultFields)
	if err != nil {
		return nil, fmt.Errorf("could not list devices of tailnet %s: %w", tailnet, err)
	}

	var addrs []string
	for _, dev := range devices {
		log.Debugf("Discovered tailnet device %s (%v)", dev.Hostname, dev.Addresses)
		addrs = append(addrs, dev.Addresses...)
	}

	return addrs, nil
}
