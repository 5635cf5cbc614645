/*
Package leader provides Raft-based leader election across meta-scheduler
replicas (spec §2 "single active instance, HA via consensus").

Only one replica runs the scheduling loop at a time; the rest stand by.
What Raft replicates is cluster metadata that must agree across
replicas before a standby can safely take over: the queue table and
the resource pool. Job, reservation, and gantt state is high-churn,
owned by whichever replica is currently Raft leader, and lives in its
local pkg/platform store — replicating every job mutation through
consensus would serialize the entire scheduling loop behind Raft commit
latency for no benefit, since only the leader ever reads or writes it.
On failover the new leader starts a fresh scheduling pass from whatever
bbolt state it has (shared storage, or a full resource/job resync from
the execution agents, is an operational concern left to deployment,
per spec's non-goal on multi-site replication).

	fsm := leader.NewFSM(store)
	node, _ := leader.New(leader.Config{NodeID: "sched-1", BindAddr: ":9200", DataDir: dataDir}, fsm)
	_ = node.Bootstrap()
	_ = node.Apply(leader.Command{Op: leader.OpSetQueueState, Data: ...})
*/
package leader
