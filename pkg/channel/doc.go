// Package channel implements the append-only file channels stages hand
// off through.
//
// Each channel has exactly one writer and one downstream reader by
// construction, so no runtime locking or arbitration is needed. Readers
// detect growth by bounded-interval polling with offset tracking, exposed
// as a lazy chunk or line sequence; there is no push notification and no
// end-of-stream marker. A consumer that needs "stream complete for now"
// uses an idle-time threshold instead, because the upstream writer may
// itself be waiting for more input indefinitely.
package channel
