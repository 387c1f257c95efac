package channel

import (
	"context"
	"sync"

	"github.com/0xArcturus/gmx-synthetics/logger"
	"github.com/0xArcturus/gmx-synthetics/models"
)

type ChannelStats struct {
	SettlementsSent    int64
	SettlementsDropped int64
}

// Channels bundles the buffered channels connecting the execution engine to
// downstream consumers. Settlements carries one record per executed deposit
// towards the archive.
type Channels struct {
	Settlements chan models.SettlementRecord

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(settlementBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Settlements: make(chan models.SettlementRecord, settlementBufferSize),
		log:         log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"settlement_buffer_size": settlementBufferSize,
	}).Info("settlement channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Settlements)
	c.log.WithComponent("channels").Info("settlement channels closed")
}

func (c *Channels) IncrementSettlementsSent() {
	c.statsMutex.Lock()
	c.stats.SettlementsSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementSettlementsDropped() {
	c.statsMutex.Lock()
	c.stats.SettlementsDropped++
	c.statsMutex.Unlock()
}

// SendSettlement offers a record to the archive without ever blocking the
// execution path; a full buffer drops the record and counts the loss.
func (c *Channels) SendSettlement(ctx context.Context, rec models.SettlementRecord) bool {
	select {
	case c.Settlements <- rec:
		c.IncrementSettlementsSent()
		logger.RecordChannelMessage("settlements", 1)
		return true
	case <-ctx.Done():
		return false
	default:
		c.IncrementSettlementsDropped()
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
