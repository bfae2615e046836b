package ringbuffer

// SlotOffset computes the shared memory offset of slot idx in channel ch.
// Slot placement is purely index based: the element stored at a given index is whatever was
// written there last, regardless of push order.
func SlotOffset(base uint64, ch int, channelStride uint64, idx int, slotSize uint64) uint64 {
	return base + uint64(ch)*channelStride + uint64(idx)*slotSize
}
