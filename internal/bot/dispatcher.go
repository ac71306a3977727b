package bot

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ndmitry/grabit/internal/alerts"
	"github.com/ndmitry/grabit/internal/config"
	"github.com/ndmitry/grabit/internal/fetch"
	"github.com/ndmitry/grabit/internal/media"
	"github.com/ndmitry/grabit/internal/transcode"
	"github.com/ndmitry/grabit/internal/util"
	"github.com/ndmitry/grabit/internal/workspace"
)

// Messenger is the slice of the Telegram API the dispatcher needs.
// Kept narrow so dispatcher tests run against a fake.
type Messenger interface {
	SendStatus(chatID int64, replyTo int, text string) (int, error)
	EditStatus(chatID int64, messageID int, text string)
	DeleteStatus(chatID int64, messageID int)
	SendMediaGroup(chatID int64, items []media.Item) error
	SendAudio(chatID int64, item media.Item) error
	SendText(chatID int64, replyTo int, text string) error
}

// Request is one URL submitted by a user message.
type Request struct {
	ChatID    int64
	UserID    int64
	MessageID int
	URL       string
}

// Dispatcher runs the download pipeline for each request: admission,
// fetch, compression policy, delivery. One goroutine per request.
type Dispatcher struct {
	reg      *Registry
	fetchers []fetch.Fetcher
	policy   *transcode.Policy
	ws       *workspace.Manager
	msgr     Messenger

	timeout time.Duration
	baseCtx context.Context
}

func NewDispatcher(ctx context.Context, reg *Registry, fetchers []fetch.Fetcher, policy *transcode.Policy, ws *workspace.Manager, msgr Messenger) *Dispatcher {
	return &Dispatcher{
		reg:      reg,
		fetchers: fetchers,
		policy:   policy,
		ws:       ws,
		msgr:     msgr,
		timeout:  config.DownloadTimeout,
		baseCtx:  ctx,
	}
}

func (d *Dispatcher) Registry() *Registry {
	return d.reg
}

// Submit starts processing a request in the background and returns the
// tracked task.
func (d *Dispatcher) Submit(req Request) *Task {
	ctx, cancel := context.WithCancel(d.baseCtx)
	task := &Task{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		ChatID:    req.ChatID,
		URL:       req.URL,
		StartedAt: time.Now(),
		stage:     "queued",
		cancel:    cancel,
	}
	d.reg.track(task)

	go func() {
		defer d.reg.untrack(task)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[Dispatcher] panic in task %s: %v", task.ID, r)
			}
		}()
		d.run(ctx, task, req)
	}()

	return task
}

func (d *Dispatcher) run(ctx context.Context, task *Task, req Request) {
	statusID, err := d.msgr.SendStatus(req.ChatID, req.MessageID, statusQueued)
	if err != nil {
		log.Printf("[Dispatcher] cannot send status message: %v", err)
	}

	fail := func(text string) {
		task.SetStage("failed")
		d.msgr.EditStatus(req.ChatID, statusID, text)
	}

	if v := util.ValidateURL(req.URL); !v.Valid {
		log.Printf("[Dispatcher] rejected URL from user %d: %s", req.UserID, v.Error)
		fail(msgBadURL)
		return
	}

	// Fetcher selection happens before any slot is claimed, so an
	// unsupported link never consumes capacity.
	fetcher := fetch.Select(d.fetchers, req.URL)
	if fetcher == nil {
		fail(msgUnsupported)
		return
	}

	if space, err := util.GetDiskSpace(d.ws.Base()); err == nil && space.AvailGB < config.DiskSpaceMinGB {
		log.Printf("[Dispatcher] low disk space: %.1fGB available", space.AvailGB)
		alerts.LowDiskSpace(space.AvailGB)
		fail(msgNoDiskSpace)
		return
	}

	release, err := d.reg.Acquire(ctx, req.UserID)
	if err != nil {
		// Only cancellation can get here; the bot is shutting down.
		d.msgr.DeleteStatus(req.ChatID, statusID)
		return
	}
	defer release()

	tctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	task.SetStage("fetching")
	d.msgr.EditStatus(req.ChatID, statusID, statusFetching)

	results, err := fetcher.Download(tctx, req.URL)
	if err != nil {
		if ctx.Err() == context.Canceled {
			d.msgr.DeleteStatus(req.ChatID, statusID)
			return
		}
		log.Printf("[Dispatcher] %s fetch failed for %s: %v", fetcher.Name(), req.URL, err)
		alerts.DownloadFailed(fetcher.Name(), req.URL, err)
		fail(failText(err))
		return
	}
	if len(results) == 0 {
		fail(msgFetchFailed)
		return
	}

	task.SetStage("processing")
	d.msgr.EditStatus(req.ChatID, statusID, statusProcessing)

	items := make([]media.Item, 0, len(results))
	for _, r := range results {
		item := media.NewItem(r)
		if d.policy.NeedsWork(item, false) {
			task.SetStage("compressing")
			d.msgr.EditStatus(req.ChatID, statusID, statusCompress)
		}
		processed, err := d.policy.Process(tctx, req.UserID, item, false)
		if err != nil {
			if ctx.Err() == context.Canceled {
				d.msgr.DeleteStatus(req.ChatID, statusID)
				return
			}
			log.Printf("[Dispatcher] processing failed for %s: %v", req.URL, err)
			if media.KindOf(err) == media.FailTranscode {
				alerts.CompressionFailed(req.URL, err)
			}
			fail(failText(err))
			return
		}
		items = append(items, processed)
	}

	task.SetStage("delivering")
	if err := deliver(d.msgr, req.ChatID, items); err != nil {
		log.Printf("[Dispatcher] delivery failed for %s: %v", req.URL, err)
		fail(msgInternal)
		return
	}

	task.SetStage("done")
	d.msgr.DeleteStatus(req.ChatID, statusID)
	log.Printf("[Dispatcher] delivered %d item(s) for %s in %s",
		len(items), fetcher.Name(), time.Since(task.StartedAt).Round(time.Millisecond))
}
