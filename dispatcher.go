package main

import "time"

type DeliveryStatus int

const (
	DeliveryOK DeliveryStatus = iota
	DeliveryPermanentFailure
	DeliveryTransientFailure
)

// DeliveryResult reports one send attempt. RetryAfter is set when the
// transport asked for a backoff; the dispatcher pauses and resends instead
// of aborting the batch.
type DeliveryResult struct {
	Status     DeliveryStatus
	RetryAfter time.Duration
	Err        error
}

// Sink is the outbound message transport.
type Sink interface {
	SendText(chatId int64, text string) DeliveryResult
	SendItem(chatId int64, item *Item, feedTitle string) DeliveryResult
}

// Target is one delivery destination: a subscriber, or a registered group.
type Target struct {
	ChatId    int64
	Group     *GroupTarget // nil for a plain subscriber
	Delivered bool
}

// Dispatcher fans new items out to every target, pacing consecutive sends
// to stay under the transport's outbound rate limit. The pacing delay is
// the dominant wall-clock cost of a busy cycle and must not be removed:
// throttling errors would otherwise feed back into the circuit breaker.
type Dispatcher struct {
	sink      Sink
	sendDelay time.Duration
	sleep     func(time.Duration)
}

func NewDispatcher(sink Sink, sendDelay time.Duration) *Dispatcher {
	return &Dispatcher{sink: sink, sendDelay: sendDelay, sleep: time.Sleep}
}

// Dispatch delivers items (oldest first) to each target. A permanently
// unreachable target is skipped for that item but keeps its registration;
// any other failure is logged and never affects sibling targets. Returns
// the number of successful sends.
func (d *Dispatcher) Dispatch(items []*Item, targets []*Target, feedTitle string) int {
	delivered := 0
	for _, item := range items {
		for _, target := range targets {
			result := d.send(target.ChatId, item, feedTitle)
			switch result.Status {
			case DeliveryOK:
				delivered++
				target.Delivered = true
				if target.Group != nil {
					target.Group.LastDeliveredAt = time.Now().UTC()
				}
			case DeliveryPermanentFailure:
				logger.Warnf("target %d unreachable, skipping: %v", target.ChatId, result.Err)
			case DeliveryTransientFailure:
				logger.Errorf("delivery to %d failed: %v", target.ChatId, result.Err)
			}
			d.sleep(d.sendDelay)
		}
	}
	return delivered
}

// send performs one attempt, honoring retry-after backoffs by pausing and
// resending.
func (d *Dispatcher) send(chatId int64, item *Item, feedTitle string) DeliveryResult {
	result := d.sink.SendItem(chatId, item, feedTitle)
	for result.RetryAfter > 0 {
		logger.Warnf("rate limited, pausing %s before resending to %d", result.RetryAfter, chatId)
		d.sleep(result.RetryAfter)
		result = d.sink.SendItem(chatId, item, feedTitle)
	}
	return result
}
