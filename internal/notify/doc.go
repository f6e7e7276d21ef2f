// Package notify fans committed store changes out to live subscriptions.
//
// A Hub is registered with the store as an Observer. Each Subscription owns
// an unbounded FIFO queue, so publishing never blocks the writer; consumers
// drain their queue with Next at their own pace. Insertions reach only the
// subscriptions whose filters match the event. Removals and decrypted
// content notices reach every subscription, since the subscriber may hold
// the event from an earlier delivery.
package notify
