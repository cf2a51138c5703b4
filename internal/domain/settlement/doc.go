// Package settlement models the payout of net order proceeds to a connected
// agency account.
//
// Key types:
//   - ClientRecord: an order with its billing state, owned by an external store
//   - TransferRecord: the single settlement of a ClientRecord; once set it never changes
//   - FeeSchedule / Split: processor and platform fee arithmetic in cents
//   - DispatchConfig: when pending settlements may be dispatched in bulk
package settlement
