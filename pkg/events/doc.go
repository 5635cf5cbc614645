/*
Package events provides an in-memory pub/sub broker used to stream
scheduler activity to the admin API (spec §6 "observable activity")
without coupling the core loop to any particular consumer.

The broker is topic-agnostic: every event is broadcast to every
subscriber, non-blocking, fire-and-forget. A slow or absent subscriber
never stalls the scheduler.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	go func() {
		for ev := range sub {
			fmt.Println(ev.Type, ev.Message)
		}
	}()

	broker.Publish(&events.Event{
		Type:    events.EventJobStateChanged,
		Message: "job 42 -> Running",
		Metadata: map[string]string{"job_id": "42", "state": "Running"},
	})

Delivery is best-effort: a subscriber whose buffer is full skips the
event rather than blocking the broadcast loop. This package has no
persistence or replay; pkg/platform's event log is the durable record,
this broker is only for live observers.
*/
package events
