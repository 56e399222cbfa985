package reactor

import "github.com/roach88/reactor/internal/stream"

// Forward maps a child reactor's committed states into mutations of a
// parent. Merge the result into the parent's mutation stream from
// TransformMutation:
//
//	func (l *Logic) TransformMutation(ms stream.Seq[Mutation]) stream.Seq[Mutation] {
//	    return stream.Merge(ms, reactor.Forward(l.child, func(c counter.State) Mutation {
//	        return ChildChanged{c}
//	    }))
//	}
//
// The child's current state is forwarded first. The child never learns
// about the parent.
func Forward[CA, CM, CS, M any](child *Reactor[CA, CM, CS], fn func(CS) M) stream.Seq[M] {
	return stream.Map(child.Stream(), fn)
}
