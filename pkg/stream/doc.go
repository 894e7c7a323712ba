// Package stream couples a record source to an ordered chain of transforms and exposes
// the result as a lazy, single use sequence.
//
// Nothing runs until the sequence is ranged over. The source is opened when iteration
// starts and it is closed exactly once, whether the source is exhausted, a transform
// fails, the consumer stops early or the context is cancelled.
//
//	p := stream.New("orders", source.JSONLinesFile("orders.jsonl")).
//		Then("active", record.Equals("status", "active")).
//		Then("tax", record.Tax("amount", "amount_with_tax", 0.13))
//
//	st := p.Stream(ctx)
//	for rec := range st.All() {
//		fmt.Println(rec)
//	}
//	if err := st.Err(); err != nil {
//		return err
//	}
package stream
