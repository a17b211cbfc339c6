package dht

import (
	"time"

	"github.com/sirupsen/logrus"
)

// startMaintenance launches the periodic peer-store sweep. Announced
// peers expire after the configured TTL; the sweep reclaims the memory
// of expired entries between reads.
func (d *DHT) startMaintenance() {
	if d.options.MaintenanceInterval <= 0 {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ticker := time.NewTicker(d.options.MaintenanceInterval)
		defer ticker.Stop()

		for {
			select {
			case <-d.ctx.Done():
				return
			case <-ticker.C:
				removed := d.peers.Sweep()
				if removed > 0 {
					logrus.WithFields(logrus.Fields{
						"function": "startMaintenance",
						"removed":  removed,
					}).Debug("Swept expired peers")
				}
			}
		}
	}()
}
