// Package nats publishes decoded records and tracker state to NATS subjects.
//
// Output depends only on the Publisher interface, which *natsclient.Client
// satisfies. Records go to Config.Subject as the JSON form of
// message.Record; tracker snapshots go to Config.StateSubject when it is set.
//
//	out, err := nats.NewOutput(nats.Deps{
//		Config:    nats.Config{Subject: "gazestream.records", StateSubject: "gazestream.state"},
//		Publisher: natsClient,
//	})
//	c, err := client.New(client.Deps{Delivery: client.DeliveryPush, OnRecord: out.Deliver, ...})
//
// Publishing is best effort: a failed publish is counted and logged, and the
// record is not retried.
package nats
