package platform

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/cuemby/batchsched/pkg/interval"
	"github.com/cuemby/batchsched/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketQueues    = []byte("queues")
	bucketResources = []byte("resources")
	bucketJobs      = []byte("jobs")
	bucketGantt     = []byte("gantt")
	bucketEvents    = []byte("event_logs")
)

// BoltStore implements Store on an embedded bbolt database, following
// the bucket-per-entity JSON persistence idiom of the teacher's
// storage.BoltStore.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a bbolt database under
// dataDir and ensures every bucket this package needs exists.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "batchsched.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{bucketQueues, bucketResources, bucketJobs, bucketGantt, bucketEvents}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func jobKey(jid int) []byte { return []byte(fmt.Sprintf("%010d", jid)) }

// Queue operations

func (s *BoltStore) SaveQueue(queue *types.Queue) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketQueues)
		data, err := json.Marshal(queue)
		if err != nil {
			return err
		}
		return b.Put([]byte(queue.Name), data)
	})
}

func (s *BoltStore) ListQueues() ([]*types.Queue, error) {
	var queues []*types.Queue
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketQueues)
		return b.ForEach(func(k, v []byte) error {
			var q types.Queue
			if err := json.Unmarshal(v, &q); err != nil {
				return err
			}
			queues = append(queues, &q)
			return nil
		})
	})
	return queues, err
}

func (s *BoltStore) SetQueueState(name string, state types.QueueState) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketQueues)
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("queue not found: %s", name)
		}
		var q types.Queue
		if err := json.Unmarshal(data, &q); err != nil {
			return err
		}
		q.State = state
		out, err := json.Marshal(&q)
		if err != nil {
			return err
		}
		return b.Put([]byte(name), out)
	})
}

// Resource operations

func (s *BoltStore) SaveResource(r *types.Resource) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResources)
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return b.Put([]byte(fmt.Sprintf("%010d", r.RID)), data)
	})
}

func (s *BoltStore) DeleteResource(rid int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResources).Delete([]byte(fmt.Sprintf("%010d", rid)))
	})
}

func (s *BoltStore) ListResources() ([]*types.Resource, error) {
	var resources []*types.Resource
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResources)
		return b.ForEach(func(k, v []byte) error {
			var r types.Resource
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			resources = append(resources, &r)
			return nil
		})
	})
	return resources, err
}

// Job operations

func (s *BoltStore) SaveJob(job *types.Job) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		data, err := json.Marshal(job)
		if err != nil {
			return err
		}
		return b.Put(jobKey(job.JID), data)
	})
}

func (s *BoltStore) GetJob(jid int) (*types.Job, error) {
	var job *types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		data := b.Get(jobKey(jid))
		if data == nil {
			return nil
		}
		job = &types.Job{}
		return json.Unmarshal(data, job)
	})
	return job, err
}

func (s *BoltStore) ListJobsInStates(states ...types.JobState) ([]*types.Job, error) {
	want := make(map[types.JobState]bool, len(states))
	for _, st := range states {
		want[st] = true
	}
	var jobs []*types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		return b.ForEach(func(k, v []byte) error {
			var job types.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			if want[job.State] {
				jobs = append(jobs, &job)
			}
			return nil
		})
	})
	sortJobsByJID(jobs)
	return jobs, err
}

func (s *BoltStore) ListWaitingJobs(queue string, reservation types.ReservationState) ([]*types.Job, error) {
	var jobs []*types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		return b.ForEach(func(k, v []byte) error {
			var job types.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			if job.State == types.JobWaiting && job.Queue == queue && job.Reservation == reservation {
				jobs = append(jobs, &job)
			}
			return nil
		})
	})
	sortJobsByJID(jobs)
	return jobs, err
}

func sortJobsByJID(jobs []*types.Job) {
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].JID < jobs[j].JID })
}

func (s *BoltStore) mutateJob(jid int, fn func(*types.Job)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		data := b.Get(jobKey(jid))
		if data == nil {
			return fmt.Errorf("job not found: %d", jid)
		}
		var job types.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return err
		}
		fn(&job)
		out, err := json.Marshal(&job)
		if err != nil {
			return err
		}
		return b.Put(jobKey(jid), out)
	})
}

func (s *BoltStore) SetJobState(jid int, state types.JobState) error {
	return s.mutateJob(jid, func(j *types.Job) { j.State = state })
}

func (s *BoltStore) SetJobMessage(jid int, message string) error {
	return s.mutateJob(jid, func(j *types.Job) { j.Message = message })
}

func (s *BoltStore) SetJobReservationState(jid int, state types.ReservationState) error {
	return s.mutateJob(jid, func(j *types.Job) { j.Reservation = state })
}

func (s *BoltStore) SetJobStartTimeAndMoldable(jid int, start int64, moldableID int) error {
	return s.mutateJob(jid, func(j *types.Job) {
		j.StartTime = start
		j.MoldableID = moldableID
		for _, m := range j.MldResRqts {
			if m.MoldableID == moldableID {
				j.Walltime = m.Walltime
			}
		}
	})
}

func (s *BoltStore) SetMoldableWalltime(jid int, walltime int64) error {
	return s.mutateJob(jid, func(j *types.Job) { j.Walltime = walltime })
}

// Gantt operations

func (s *BoltStore) SaveAssignment(jid int, moldableID int, start int64, resSet interval.Set) error {
	if err := s.mutateJob(jid, func(j *types.Job) { j.ResSet = resSet }); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGantt)
		ga := types.GanttAssignment{JID: jid, MoldableID: moldableID, StartTime: start, ResSet: resSet}
		data, err := json.Marshal(&ga)
		if err != nil {
			return err
		}
		return b.Put(jobKey(jid), data)
	})
}

func (s *BoltStore) ListGanttAssignments() ([]*types.GanttAssignment, error) {
	var out []*types.GanttAssignment
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGantt)
		return b.ForEach(func(k, v []byte) error {
			var ga types.GanttAssignment
			if err := json.Unmarshal(v, &ga); err != nil {
				return err
			}
			out = append(out, &ga)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].JID < out[j].JID })
	return out, err
}

func (s *BoltStore) mutateGantt(jid int, fn func(*types.GanttAssignment)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGantt)
		data := b.Get(jobKey(jid))
		if data == nil {
			return fmt.Errorf("gantt assignment not found: %d", jid)
		}
		var ga types.GanttAssignment
		if err := json.Unmarshal(data, &ga); err != nil {
			return err
		}
		fn(&ga)
		out, err := json.Marshal(&ga)
		if err != nil {
			return err
		}
		return b.Put(jobKey(jid), out)
	})
}

func (s *BoltStore) SetGanttStartTime(jid int, start int64) error {
	return s.mutateGantt(jid, func(ga *types.GanttAssignment) { ga.StartTime = start })
}

func (s *BoltStore) RemoveGanttResources(jid int, missing interval.Set) error {
	return s.mutateGantt(jid, func(ga *types.GanttAssignment) {
		ga.ResSet = interval.Subtract(ga.ResSet, missing)
	})
}

func (s *BoltStore) DeleteGanttAssignment(jid int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketGantt).Delete(jobKey(jid))
	})
}

// Event log operations

func (s *BoltStore) AppendEvent(ev *types.EventLog) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		rec := *ev
		if r := []rune(rec.Description); len(r) > 255 {
			rec.Description = string(r[:255])
		}
		data, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(fmt.Sprintf("%010d-%020d", ev.JID, seq)), data)
	})
}

func (s *BoltStore) ListEvents(jid int) ([]*types.EventLog, error) {
	prefix := []byte(fmt.Sprintf("%010d-", jid))
	var out []*types.EventLog
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var ev types.EventLog
			if err := json.Unmarshal(v, &ev); err != nil {
				return err
			}
			out = append(out, &ev)
		}
		return nil
	})
	return out, err
}

func hasPrefix(b, prefix []byte) bool {
	return len(b) >= len(prefix) && string(b[:len(prefix)]) == string(prefix)
}

// RefreshGanttVisualization is a no-op for BoltStore: ListGanttAssignments
// and ListJobsInStates already read live state, so there is no derived
// mirror table to refresh. Kept on the interface so a future read-model
// store (e.g. one backing the admin API from a separate replica) has
// somewhere to hook in a real projection.
func (s *BoltStore) RefreshGanttVisualization() error {
	return nil
}
