package record

import "fmt"

// BuildChain splits data into one record per block. Records come back in
// chain order with null addresses and links; the allocator assigns both.
func (f Format) BuildChain(data []byte, binary bool) ([]*Record, error) {
	chunks := f.Encode(data)
	records := make([]*Record, 0, len(chunks))

	for i, chunk := range chunks {
		raw, err := f.Decode(chunk)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		r := f.NewRecord()
		r.SetPayload(raw, binary)
		records = append(records, r)
	}

	return records, nil
}

// LinkChain gives records[i] the address addrs[i] and points it at
// addrs[i+1]. The last record keeps a null link.
func LinkChain(records []*Record, addrs []Address) error {
	if len(records) != len(addrs) {
		return fmt.Errorf("%w: %d records, %d addresses", ErrAddressCount, len(records), len(addrs))
	}

	for i, addr := range addrs {
		if addr.IsNull() {
			return fmt.Errorf("%w: null address for record %d", ErrInvalidAddress, i)
		}
	}

	for i, r := range records {
		r.SetAddress(addrs[i])
		if i+1 < len(addrs) {
			r.SetLinkAddress(addrs[i+1])
		} else {
			r.SetLinkAddress(NullAddress)
		}
	}

	return nil
}
