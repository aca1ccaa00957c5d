package rpc

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"time"

	"acorn/log"
)

// ServerInfo is the struct to store rpc current slot.
type ServerInfo struct {
	URL  string
	Slot int64
}

// SlotResponse is the result of 'getSlot'.
type SlotResponse struct {
	jsonRPCResponse
	Result int64 `json:"result"`
}

// getServer randomly returns one of rpc servers whose slot is at least minSlot.
func (c *Client) getServer(minSlot int64) (string, bool) {
	if minSlot < 0 {
		minSlot = 0
	}

	c.sLock.Lock()
	defer c.sLock.Unlock()

	candidates := []string{}

	for url, slot := range c.servers {
		if slot >= minSlot {
			// Local servers are picked twice as often.
			if strings.Contains(url, "127.0.0.1") ||
				strings.Contains(url, "localhost") {
				candidates = append(candidates, url)
			}

			candidates = append(candidates, url)
		}
	}

	l := len(candidates)
	if l == 0 {
		return "", false
	}

	return candidates[rand.Intn(l)], true
}

func (c *Client) serverUnavailable(url string) {
	c.sLock.Lock()
	defer c.sLock.Unlock()

	// Incase server set changed while the request was in flight.
	if _, ok := c.servers[url]; ok {
		c.servers[url] = -1
	}
}

func (c *Client) serverCount() int {
	c.sLock.Lock()
	defer c.sLock.Unlock()
	return len(c.servers)
}

// Servers returns all servers with their last known slot.
func (c *Client) Servers() []ServerInfo {
	c.sLock.Lock()
	defer c.sLock.Unlock()

	infos := make([]ServerInfo, 0, len(c.servers))
	for url, slot := range c.servers {
		infos = append(infos, ServerInfo{URL: url, Slot: slot})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].URL < infos[j].URL })
	return infos
}

// SetServers replaces the server set, e.g. after a config reload.
func (c *Client) SetServers(urls []string) {
	c.sLock.Lock()
	defer c.sLock.Unlock()

	servers := make(map[string]int64)
	for _, url := range urls {
		servers[url] = c.servers[url]
	}
	c.servers = servers
}

// BestSlot returns the highest slot seen by the last refresh.
func (c *Client) BestSlot() int64 {
	return c.bestSlot.Load()
}

// PrintServerStatus logs every server with its slot.
func (c *Client) PrintServerStatus() {
	for _, s := range c.Servers() {
		log.Printf("%s: %d", s.URL, s.Slot)
	}
}

// TraceBestSlot refreshes server slots until ctx is done.
func (c *Client) TraceBestSlot(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		c.RefreshServers(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RefreshServers updates slots of all rpc servers and returns the best one.
func (c *Client) RefreshServers(ctx context.Context) int64 {
	// It takes time to get slots.
	serverInfos := c.getSlots(ctx)

	c.sLock.Lock()
	defer c.sLock.Unlock()

	bestSlot := int64(0)
	for url, slot := range serverInfos {
		// Incase server set changed during the refresh.
		if _, ok := c.servers[url]; !ok {
			continue
		}
		c.servers[url] = slot
		if bestSlot < slot {
			bestSlot = slot
		}
	}
	c.bestSlot.Store(bestSlot)

	return bestSlot
}

func (c *Client) getSlots(ctx context.Context) map[string]int64 {
	urls := []string{}
	for _, s := range c.Servers() {
		urls = append(urls, s.URL)
	}

	ch := make(chan ServerInfo, len(urls))

	for _, url := range urls {
		go func(url string) {
			slot, err := c.getSlotFrom(ctx, url)
			if err != nil {
				slot = -1
			}
			ch <- ServerInfo{URL: url, Slot: slot}
		}(url)
	}

	serverInfos := make(map[string]int64)

	for range urls {
		s := <-ch
		serverInfos[s.URL] = s.Slot
	}

	return serverInfos
}

// getSlotFrom returns current slot of the given rpc server.
func (c *Client) getSlotFrom(ctx context.Context, url string) (int64, error) {
	body, err := getRPCRequestBody("getSlot", nil)
	if err != nil {
		return -1, err
	}

	bodyBytes, err := c.post(ctx, url, body)
	if err != nil {
		return -1, err
	}

	respData := SlotResponse{}
	if err := json.Unmarshal(bodyBytes, &respData); err != nil {
		return -1, err
	}
	if respData.Error != nil {
		return -1, respData.Error
	}

	return respData.Result, nil
}
