package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "github.com/0xArcturus/gmx-synthetics/config"
	"github.com/0xArcturus/gmx-synthetics/internal/channel"
	"github.com/0xArcturus/gmx-synthetics/logger"
	"github.com/0xArcturus/gmx-synthetics/models"
)

type settlementParquetRecord struct {
	Key              string `parquet:"name=key, type=BYTE_ARRAY, convertedtype=UTF8"`
	Market           string `parquet:"name=market, type=BYTE_ARRAY, convertedtype=UTF8"`
	MarketName       string `parquet:"name=market_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Account          string `parquet:"name=account, type=BYTE_ARRAY, convertedtype=UTF8"`
	Receiver         string `parquet:"name=receiver, type=BYTE_ARRAY, convertedtype=UTF8"`
	LongTokenAmount  string `parquet:"name=long_token_amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	ShortTokenAmount string `parquet:"name=short_token_amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	MintedAmount     string `parquet:"name=minted_amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	DepositUSD       string `parquet:"name=deposit_usd, type=BYTE_ARRAY, convertedtype=UTF8"`
	FeeUSD           string `parquet:"name=fee_usd, type=BYTE_ARRAY, convertedtype=UTF8"`
	OracleBlock      int64  `parquet:"name=oracle_block, type=INT64"`
	ExecutedAt       int64  `parquet:"name=executed_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

type settlementBatch struct {
	Market      string
	Entries     []models.SettlementRecord
	Timestamp   time.Time
	Reason      string
	RecordCount int
}

type memFile struct {
	buffer *bytes.Buffer
}

func newMemFile() *memFile {
	return &memFile{buffer: &bytes.Buffer{}}
}

func (m *memFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFile) Read([]byte) (int, error)                  { return 0, fmt.Errorf("read not supported") }
func (m *memFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFile) Close() error                              { return nil }
func (m *memFile) Bytes() []byte                             { return m.buffer.Bytes() }

// Writer archives settlement records to parquet, batched per market and
// written to S3 or a local directory depending on configuration.
type Writer struct {
	cfg      appconfig.ArchiveConfig
	channels *channel.Channels
	s3Client *s3.Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     *sync.WaitGroup

	log *logger.Log

	mu          sync.Mutex
	buffer      map[string][]models.SettlementRecord
	flushTicker *time.Ticker
	maxBuffer   int
	jobCh       chan settlementBatch
	running     bool
}

// NewWriter creates a settlement archive writer over the settlements channel.
func NewWriter(cfg appconfig.ArchiveConfig, ch *channel.Channels) (*Writer, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("archive disabled")
	}
	if ch == nil {
		return nil, fmt.Errorf("nil settlement channels provided")
	}

	var s3Client *s3.Client
	if cfg.S3.Enabled {
		ctx := context.Background()
		loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3.Region)}
		if cfg.S3.AccessKeyID != "" && cfg.S3.SecretAccessKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(
					cfg.S3.AccessKeyID,
					cfg.S3.SecretAccessKey,
					"",
				),
			))
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		s3Client = s3.NewFromConfig(awsCfg)
	}

	maxBuffer := cfg.BatchSize
	if maxBuffer <= 0 {
		maxBuffer = 256
	}

	jobCapacity := maxBuffer * 2
	if jobCapacity < 64 {
		jobCapacity = 64
	}

	return &Writer{
		cfg:       cfg,
		channels:  ch,
		s3Client:  s3Client,
		wg:        &sync.WaitGroup{},
		log:       logger.GetLogger(),
		buffer:    make(map[string][]models.SettlementRecord),
		maxBuffer: maxBuffer,
		jobCh:     make(chan settlementBatch, jobCapacity),
	}, nil
}

// Start begins consuming settlement records.
func (w *Writer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("archive writer already running")
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.buffer = make(map[string][]models.SettlementRecord)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)
	w.mu.Unlock()

	w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"flush_interval": w.cfg.FlushInterval,
		"max_buffer":     w.maxBuffer,
		"s3":             w.cfg.S3.Enabled,
	}).Info("starting settlement archive writer")

	w.wg.Add(1)
	go w.ingest()

	w.wg.Add(1)
	go w.flushLoop()

	w.wg.Add(1)
	go w.uploadWorker()

	return nil
}

// Stop terminates goroutines and flushes buffers.
func (w *Writer) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	ticker := w.flushTicker
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ticker != nil {
		ticker.Stop()
	}

	w.flushBuffers("shutdown")
	close(w.jobCh)
	w.wg.Wait()
	w.log.WithComponent("archive_writer").Info("settlement archive writer stopped")
}

func (w *Writer) ingest() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case rec, ok := <-w.channels.Settlements:
			if !ok {
				w.flushBuffers("channel_closed")
				return
			}
			if rec.ExecutedAt.IsZero() {
				rec.ExecutedAt = time.Now().UTC()
			}
			w.addRecord(rec)
		}
	}
}

func (w *Writer) flushLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flushBuffers("interval")
		}
	}
}

func (w *Writer) uploadWorker() {
	defer w.wg.Done()
	for batch := range w.jobCh {
		w.processBatch(batch)
	}
}

func (w *Writer) addRecord(rec models.SettlementRecord) {
	key := strings.ToLower(rec.Market)

	var flushEntries []models.SettlementRecord
	w.mu.Lock()
	w.buffer[key] = append(w.buffer[key], rec)
	if len(w.buffer[key]) >= w.maxBuffer {
		flushEntries = w.buffer[key]
		delete(w.buffer, key)
	}
	w.mu.Unlock()

	if len(flushEntries) > 0 {
		w.enqueueBatch(key, flushEntries, "max_buffer")
	}
}

func (w *Writer) flushBuffers(reason string) {
	w.mu.Lock()
	buffers := w.buffer
	w.buffer = make(map[string][]models.SettlementRecord)
	w.mu.Unlock()

	for key, entries := range buffers {
		if len(entries) == 0 {
			continue
		}
		w.enqueueBatch(key, entries, reason)
	}
}

func (w *Writer) enqueueBatch(market string, entries []models.SettlementRecord, reason string) {
	ts := time.Now().UTC()
	if len(entries) > 0 && !entries[len(entries)-1].ExecutedAt.IsZero() {
		ts = entries[len(entries)-1].ExecutedAt
	}
	batch := settlementBatch{
		Market:      market,
		Entries:     entries,
		Timestamp:   ts,
		Reason:      reason,
		RecordCount: len(entries),
	}
	// Prefer the send so the shutdown flush still lands after the context
	// is cancelled, as long as the queue has room.
	select {
	case w.jobCh <- batch:
		return
	default:
	}
	select {
	case w.jobCh <- batch:
	case <-w.ctx.Done():
	}
}

func (w *Writer) processBatch(batch settlementBatch) {
	entryLog := w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"market":       batch.Market,
		"record_count": batch.RecordCount,
		"reason":       batch.Reason,
	})

	if batch.RecordCount == 0 {
		entryLog.Debug("settlement batch empty, skipping")
		return
	}

	key := w.generateKey(batch)
	data, size, err := encodeParquet(batch.Entries)
	if err != nil {
		entryLog.WithError(err).Error("failed to create settlement parquet")
		return
	}

	if w.cfg.S3.Enabled {
		if err := w.uploadToS3(key, data); err != nil {
			entryLog.WithError(err).WithFields(logger.Fields{"key": key}).Error("failed to upload settlement parquet")
			return
		}
	} else {
		if err := w.writeLocal(key, data); err != nil {
			entryLog.WithError(err).WithFields(logger.Fields{"key": key}).Error("failed to write settlement parquet")
			return
		}
	}

	logger.IncrementArchiveWrite(size)
	entryLog.WithFields(logger.Fields{
		"key":       key,
		"file_size": size,
	}).Info("settlement batch archived")
}

func encodeParquet(entries []models.SettlementRecord) ([]byte, int64, error) {
	mem := newMemFile()
	pw, err := writer.NewParquetWriter(mem, new(settlementParquetRecord), 1)
	if err != nil {
		return nil, 0, fmt.Errorf("new parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, entry := range entries {
		rec := settlementParquetRecord{
			Key:              entry.Key,
			Market:           entry.Market,
			MarketName:       entry.MarketName,
			Account:          entry.Account,
			Receiver:         entry.Receiver,
			LongTokenAmount:  entry.LongTokenAmount,
			ShortTokenAmount: entry.ShortTokenAmount,
			MintedAmount:     entry.MintedAmount,
			DepositUSD:       entry.DepositUSD,
			FeeUSD:           entry.FeeUSD,
			OracleBlock:      int64(entry.OracleBlock),
			ExecutedAt:       entry.ExecutedAt.UnixMilli(),
		}
		if err := pw.Write(rec); err != nil {
			pw.WriteStop()
			return nil, 0, fmt.Errorf("write settlement record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, 0, fmt.Errorf("finalize settlement parquet: %w", err)
	}

	data := mem.Bytes()
	return data, int64(len(data)), nil
}

func (w *Writer) generateKey(batch settlementBatch) string {
	datePart := batch.Timestamp.UTC().Format("2006-01-02")
	filename := fmt.Sprintf("%s_settlements.parquet",
		time.Now().UTC().Format("20060102150405")+uuid.NewString(),
	)
	key := filepath.Join(
		w.cfg.S3.Prefix,
		fmt.Sprintf("market=%s", batch.Market),
		fmt.Sprintf("date=%s", datePart),
		filename,
	)
	return filepath.ToSlash(key)
}

func (w *Writer) writeLocal(key string, data []byte) error {
	path := filepath.Join(w.cfg.LocalDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write archive file: %w", err)
	}
	return nil
}

func (w *Writer) uploadToS3(key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.cfg.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type": "parquet",
			"compression":  "snappy",
		},
	}

	ctx, cancel := context.WithTimeout(w.ctx, 2*time.Minute)
	defer cancel()
	if _, err := w.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("upload settlement parquet: %w", err)
	}
	return nil
}
