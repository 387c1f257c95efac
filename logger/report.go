package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsKeeper      int64
	errorsOracle      int64
	warnsKeeper       int64
	warnsOracle       int64
	depositsCreated   int64
	depositsExecuted  int64
	depositsCancelled int64
	archiveWrites     int64
	channels          sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	if strings.Contains(component, "keeper") {
		atomic.AddInt64(&warnsKeeper, 1)
	} else if strings.Contains(component, "oracle") || strings.Contains(component, "feed") {
		atomic.AddInt64(&warnsOracle, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "keeper") {
		atomic.AddInt64(&errorsKeeper, 1)
	} else if strings.Contains(component, "oracle") || strings.Contains(component, "feed") {
		atomic.AddInt64(&errorsOracle, 1)
	}
}

func IncrementDepositCreated() {
	atomic.AddInt64(&depositsCreated, 1)
}

func IncrementDepositExecuted() {
	atomic.AddInt64(&depositsExecuted, 1)
}

func IncrementDepositCancelled() {
	atomic.AddInt64(&depositsCancelled, 1)
}

func IncrementArchiveWrite(size int64) {
	atomic.AddInt64(&archiveWrites, 1)
	recordChannel("archive_write", int(size))
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and settlement statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	fields := Fields{
		"errors_keeper":      atomic.LoadInt64(&errorsKeeper),
		"errors_oracle":      atomic.LoadInt64(&errorsOracle),
		"warns_keeper":       atomic.LoadInt64(&warnsKeeper),
		"warns_oracle":       atomic.LoadInt64(&warnsOracle),
		"deposits_created":   atomic.LoadInt64(&depositsCreated),
		"deposits_executed":  atomic.LoadInt64(&depositsExecuted),
		"deposits_cancelled": atomic.LoadInt64(&depositsCancelled),
		"archive_writes":     atomic.LoadInt64(&archiveWrites),
		"goroutines":         runtime.NumGoroutine(),
		"cpu_percent":        cpuPct,
		"memory_mb":          int64(memStats.Used) / 1024 / 1024,
		"disk_mb":            int64(diskStats.Used) / 1024 / 1024,
		"channels":           channelData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsKeeper"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_keeper"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsOracle"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_oracle"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsKeeper"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_keeper"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsOracle"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_oracle"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("DepositsCreated"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["deposits_created"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("DepositsExecuted"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["deposits_executed"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("DepositsCancelled"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["deposits_cancelled"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("SettlementsArchived"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["archive_writes"].(int64)))},
	)

	for name, stats := range channelData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("ChannelMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("ChannelBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
