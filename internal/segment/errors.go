package segment

import "errors"

// ErrUnknownAddress is returned by Handle.ReadAt when the address is not
// present in knownAddresses. It is not one of the store's public error
// kinds: the store translates a miss into a nil LogData, per the read
// contract.
var ErrUnknownAddress = errors.New("segment: address not known to this segment")
