package ingest

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viktsys/tweetimpact/config"
	"github.com/viktsys/tweetimpact/impact"
	"github.com/viktsys/tweetimpact/models"
)

// Sink persists parsed records. *database.Store satisfies it.
type Sink interface {
	SaveTicks(ctx context.Context, ticks []models.PriceTick) error
	SaveEvents(ctx context.Context, events []models.Event, batchSize int) error
}

type Processor struct {
	sink           Sink
	loc            impact.Localizer
	cfg            config.Ingest
	processedRows  int64
	processedFiles int64
}

func NewProcessor(sink Sink, loc impact.Localizer, cfg config.Ingest) *Processor {
	return &Processor{sink: sink, loc: loc, cfg: cfg}
}

// ProcessedRows returns the number of ticks written so far.
func (p *Processor) ProcessedRows() int64 { return atomic.LoadInt64(&p.processedRows) }

// ProcessedFiles returns the number of files fully written so far.
func (p *Processor) ProcessedFiles() int64 { return atomic.LoadInt64(&p.processedFiles) }

// ProcessPriceDirectory parses every CSV under dataDir in parallel and
// writes the ticks. Bad files are reported and skipped.
func (p *Processor) ProcessPriceDirectory(ctx context.Context, dataDir string) (BuildReport, error) {
	startTime := time.Now()
	report := BuildReport{Dir: dataDir}

	files, err := FindCSVFiles(dataDir)
	if err != nil {
		return report, err
	}
	if len(files) == 0 {
		return report, fmt.Errorf("no CSV files found in directory: %s", dataDir)
	}

	fileWorkers := max(p.cfg.FileWorkers, 1)
	log.Printf("Found %d CSV files; using %d file workers and %d batch workers per file",
		len(files), fileWorkers, p.cfg.WorkerCount)

	report.Files = make([]FileOutcome, len(files))
	semaphore := make(chan struct{}, fileWorkers)
	var wg sync.WaitGroup

	for i, file := range files {
		wg.Add(1)
		go func(i int, filename string) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			fileStart := time.Now()
			outcome := p.ProcessPriceFile(ctx, filename)
			report.Files[i] = outcome
			if outcome.Skipped() {
				log.Printf("Error processing file %s: %v", filename, outcome.Err)
				return
			}

			atomic.AddInt64(&p.processedFiles, 1)
			log.Printf("Successfully processed file: %s (%d rows, took %v)",
				filename, outcome.Rows, time.Since(fileStart))
		}(i, file)
	}
	wg.Wait()

	if skipped := len(report.Skipped()); skipped > 0 {
		log.Printf("Encountered %d file errors during processing", skipped)
	}

	totalDuration := time.Since(startTime)
	log.Printf("Price ingestion completed in %v. Processed %d files, %d total rows",
		totalDuration, p.ProcessedFiles(), p.ProcessedRows())

	return report, ctx.Err()
}

// ProcessPriceFile parses one file and writes it through the batch workers.
func (p *Processor) ProcessPriceFile(ctx context.Context, filename string) FileOutcome {
	ticks, outcome := ParsePriceFile(filename, p.loc)
	if outcome.Skipped() {
		return outcome
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workerCount := max(p.cfg.WorkerCount, 1)
	batchChan := make(chan []models.PriceTick, max(p.cfg.BufferSize, 1))
	errorChan := make(chan error, workerCount)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go p.worker(ctx, batchChan, errorChan, &wg)
	}

	go func() {
		defer close(batchChan)

		batchSize := max(p.cfg.BatchSize, 1)
		batchCount := 0
		for start := 0; start < len(ticks); start += batchSize {
			end := min(start+batchSize, len(ticks))
			select {
			case batchChan <- ticks[start:end]:
				batchCount++
			case <-ctx.Done():
				return
			}
		}
		log.Printf("Sent %d batches for processing from file: %s", batchCount, filepath.Base(filename))
	}()

	go func() {
		wg.Wait()
		close(errorChan)
	}()

	for err := range errorChan {
		if err != nil {
			cancel()
			outcome.Err = fmt.Errorf("worker error: %w", err)
			outcome.Rows = 0
			return outcome
		}
	}
	return outcome
}

func (p *Processor) worker(ctx context.Context, batchChan <-chan []models.PriceTick, errorChan chan<- error, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case batch, ok := <-batchChan:
			if !ok {
				return
			}
			if err := p.sink.SaveTicks(ctx, batch); err != nil {
				errorChan <- err
				return
			}
			atomic.AddInt64(&p.processedRows, int64(len(batch)))
		case <-ctx.Done():
			return
		}
	}
}

// ProcessEvents loads the event CSV and upserts it, one row per id. A missing
// createdAt column aborts the ingest.
func (p *Processor) ProcessEvents(ctx context.Context, path string, filter EventFilter) (int, error) {
	events, err := LoadEvents(path, filter)
	if err != nil {
		return 0, err
	}
	if unique := UniqueByID(events); len(unique) < len(events) {
		log.Printf("Skipping %d events with a repeated id in %s", len(events)-len(unique), path)
		events = unique
	}
	if err := p.sink.SaveEvents(ctx, events, p.cfg.BatchSize); err != nil {
		return 0, fmt.Errorf("failed to save events: %w", err)
	}
	log.Printf("Stored %d events from %s", len(events), path)
	return len(events), nil
}
