// Package graph answers questions about the endpoints attached to a topic.
//
// Queries go through the transport of an rcl.Context, which must implement
// transport.GraphQuerier. Results are stored in an Endpoints value whose
// records come from the caller's allocator and are released by Fini:
//
//	var pubs graph.Endpoints
//	if err := graph.PublishersInfoByTopic(ctx, allocator.Default(), "/chatter", &pubs); err != nil {
//		return err
//	}
//	defer pubs.Fini()
//
//	for _, info := range pubs.Infos() {
//		fmt.Println(info.Handle, info.QoS.Deadline)
//	}
//
// The zero Endpoints is uninitialized and must not be reused without Fini.
package graph
