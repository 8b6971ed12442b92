package dashclient

// StreamCount reports how many streams the client still tracks.
func (c *Client) StreamCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}
