package redis

import "fmt"

// Redis key naming conventions. All keys share a prefix to avoid
// collisions with other tenants of the database.

const defaultPrefix = "dmagent:"

type keys struct {
	prefix string
}

// job returns the Hash key of a job: dmagent:job:{id}
func (k keys) job(id string) string { return k.prefix + "job:" + id }

// jobIDs is the Sorted Set of every job id, all scored 0 so that ZRANGEBYLEX
// walks them in id order.
func (k keys) jobIDs() string { return k.prefix + "job_ids" }

// active returns the marker naming the active job of a slot.
func (k keys) active(slotKey string) string { return k.prefix + "slot_active:" + slotKey }

// published returns the marker naming the job that published a slot.
func (k keys) published(slotKey string) string { return k.prefix + "slot_published:" + slotKey }

// lease returns the Hash key of a lease: dmagent:lease:{key}
func (k keys) lease(key string) string { return fmt.Sprintf("%slease:%s", k.prefix, key) }
