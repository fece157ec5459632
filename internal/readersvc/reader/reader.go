package reader

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zesik/felicatool/internal/comm"
	"github.com/zesik/felicatool/internal/felica/history"
	"github.com/zesik/felicatool/internal/felica/record"
	"github.com/zesik/felicatool/internal/readersvc/card"
	"github.com/zesik/felicatool/internal/readersvc/metrics"
)

// status texts shown to the user
const (
	StatusNoReader   = "カードリーダーを接続してください"
	StatusWaiting    = "カードをかざしてください"
	StatusReading    = "読み込み中"
	StatusNotFelica  = "このカードは FeliCa カードではありませんでした"
	StatusReadError  = "交通系 IC カードとして読み込めませんでした"
	StatusStoreError = "履歴を保存できませんでした"
	StatusDone       = "データを読み込みました"

	noDeviceProduct = "なし"
)

var (
	ErrNotFelica  = errors.New("reader: tag is not a FeliCa card")
	ErrNotTransit = errors.New("reader: not a transportation card")
)

// Updater delivers status and card data to whoever displays them.
type Updater interface {
	// EmitStatus publishes the current status. An empty status or a nil
	// device keeps the previous value.
	EmitStatus(status string, device *comm.Device)
	EmitData(data comm.CardData)
}

type Options struct {
	Devices      []string
	PollInterval time.Duration
	SenseTimeout time.Duration
}

type Reader struct {
	updater    Updater
	reconciler *history.Reconciler
	open       card.Opener
	opts       Options
}

func New(updater Updater, reconciler *history.Reconciler, open card.Opener, opts Options) *Reader {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.SenseTimeout <= 0 {
		opts.SenseTimeout = 30 * time.Second
	}
	return &Reader{
		updater:    updater,
		reconciler: reconciler,
		open:       open,
		opts:       opts,
	}
}

// Run handles card presentations until ctx is done.
func (r *Reader) Run(ctx context.Context) error {
	log.Info("reader loop started")
	for {
		r.RunOnce(ctx)

		log.Debug("wait for a while")
		select {
		case <-ctx.Done():
			log.Info("reader loop exiting")
			return ctx.Err()
		case <-time.After(r.opts.PollInterval):
		}
		log.Debug("starting over")
	}
}

// RunOnce looks for a reader and waits for one card presentation. It reports
// whether a card was handled.
func (r *Reader) RunOnce(ctx context.Context) (handled bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("recovered from panic while reading card: %v", rec)
			handled = false
		}
	}()

	f := r.findFrontend()
	if f == nil {
		log.Error("no contactless reader available")
		r.updater.EmitStatus(StatusNoReader, &comm.Device{Product: noDeviceProduct})
		return false
	}
	defer f.Close()

	device := f.Device()
	log.Infof("using %s", device.Product)
	r.updater.EmitStatus(StatusWaiting, &device)

	senseCtx, cancel := context.WithTimeout(ctx, r.opts.SenseTimeout)
	defer cancel()

	tag, err := f.Sense(senseCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			log.Debug("no card presented")
		} else {
			log.Errorf("error while sensing card: %s", err)
		}
		return false
	}

	if err := r.OnConnected(ctx, tag); err != nil {
		log.Errorf("card session failed: %s", err)
	}
	return true
}

func (r *Reader) findFrontend() card.Frontend {
	for _, path := range r.opts.Devices {
		log.Infof("searching contactless reader on %s", path)
		f, err := r.open(path)
		if err != nil {
			if errors.Is(err, card.ErrNoDevice) {
				log.Errorf("no contactless reader found on %s", path)
			} else {
				log.Errorf("error while trying %s: %s", path, err)
			}
			continue
		}
		log.Debugf("found a usable reader on %s", path)
		return f
	}
	return nil
}

// OnConnected processes one presented card: it reads both areas, syncs the
// history into the card log and emits the result. Failures are reported
// through the updater and returned.
func (r *Reader) OnConnected(ctx context.Context, tag card.Tag) error {
	started := time.Now()
	tagID := hex.EncodeToString(tag.Identifier())
	log.Infof("found tag: type=%s ('%s'), id=%s", tag.Type(), tag.Product(), tagID)
	r.updater.EmitStatus(StatusReading, nil)

	if tag.Type() != card.TypeFelica {
		log.Error("cannot read data because tag is not Type3Tag")
		r.updater.EmitStatus(StatusNotFelica, nil)
		metrics.ObserveSession(metrics.ResultNotFelica, started)
		return ErrNotFelica
	}

	balanceBlocks, historyBlocks, err := readAreas(tag)
	if err != nil {
		log.Errorf("error while reading data: %s", err)
		r.updater.EmitStatus(StatusReadError, nil)
		metrics.ObserveSession(metrics.ResultReadError, started)
		return err
	}

	balance, err := record.DecodeBalance(balanceBlocks[0])
	if err != nil {
		log.Errorf("error while decoding balance: %s", err)
		r.updater.EmitStatus(StatusReadError, nil)
		metrics.ObserveSession(metrics.ResultDecodeError, started)
		return err
	}

	session, err := r.reconciler.Sync(ctx, tagID, historyBlocks)
	if err != nil {
		log.Errorf("error while storing records: %s", err)
		r.updater.EmitStatus(StatusStoreError, nil)
		metrics.ObserveSession(metrics.ResultStoreError, started)
		return err
	}
	if session != nil {
		metrics.AddAppended(session.NewCount)
		if session.Discontinuity {
			metrics.IncDiscontinuity()
		}
	}

	r.updater.EmitData(comm.NewCardData(tagID, balance, session))
	r.updater.EmitStatus(StatusDone, nil)
	metrics.ObserveSession(metrics.ResultSuccess, started)
	return nil
}

func readAreas(tag card.Tag) (balance, hist [][]byte, err error) {
	balance, err = card.ReadAllBlocks(tag, card.ServiceBalance)
	if err != nil {
		return nil, nil, err
	}
	if len(balance) == 0 {
		return nil, nil, ErrNotTransit
	}
	hist, err = card.ReadAllBlocks(tag, card.ServiceHistory)
	if err != nil {
		return nil, nil, fmt.Errorf("history: %w", err)
	}
	return balance, hist, nil
}
