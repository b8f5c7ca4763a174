package erp

import (
	"fmt"
	"log"
	"time"

	"floorcore/store"
)

// Poller keeps the local order book in sync with the ERP. It imports open
// orders with their routing steps and released lots on a fixed interval.
// Existing orders are never overwritten: execution state is owned locally
// and the ERP is only the source of new work.
type Poller struct {
	client   *Client
	db       *store.DB
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewPoller(client *Client, db *store.DB, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{
		client:   client,
		db:       db,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (p *Poller) Start() {
	go p.run()
}

func (p *Poller) Stop() {
	close(p.stop)
	<-p.done
}

func (p *Poller) run() {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if err := p.Sync(); err != nil {
		log.Printf("erp: initial sync failed: %v", err)
	}
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			if err := p.Sync(); err != nil {
				log.Printf("erp: sync failed: %v", err)
			}
		}
	}
}

// Sync pulls all pages of the ERP open-order book and imports anything new.
func (p *Poller) Sync() error {
	page := 1
	const size = 100
	imported := 0
	for {
		orders, err := p.client.ListOpenOrders(page, size)
		if err != nil {
			return err
		}
		for i := range orders {
			ok, err := p.importOrder(&orders[i])
			if err != nil {
				log.Printf("erp: import %s failed: %v", orders[i].OrderCode, err)
				continue
			}
			if ok {
				imported++
			}
		}
		if len(orders) < size {
			break
		}
		page++
	}
	if imported > 0 {
		log.Printf("erp: imported %d new orders", imported)
	}
	return nil
}

// importOrder creates the order with its steps and lots if it is not known
// yet. Returns true when a new order was created.
func (p *Poller) importOrder(o *Order) (bool, error) {
	existing, err := p.db.GetProductionOrderByCode(o.OrderCode)
	if err != nil {
		return false, fmt.Errorf("lookup: %w", err)
	}
	if existing != nil {
		return false, nil
	}

	for i := range o.Steps {
		s := &o.Steps[i]
		known, err := p.db.GetProcessStepByCode(s.StepCode)
		if err != nil {
			return false, fmt.Errorf("lookup step %s: %w", s.StepCode, err)
		}
		if known != nil {
			continue
		}
		if err := p.db.CreateProcessStep(&store.ProcessStep{
			Code:              s.StepCode,
			Name:              s.Name,
			Sequence:          s.Sequence,
			StandardCycleTime: s.StandardCycleTime,
		}); err != nil {
			return false, fmt.Errorf("create step %s: %w", s.StepCode, err)
		}
	}

	for i := range o.Lots {
		l := &o.Lots[i]
		known, err := p.db.GetLotByCode(l.LotCode)
		if err != nil {
			return false, fmt.Errorf("lookup lot %s: %w", l.LotCode, err)
		}
		if known != nil {
			continue
		}
		if err := p.db.CreateLot(&store.Lot{
			Code:     l.LotCode,
			ItemCode: l.ItemCode,
			Origin:   l.Origin,
		}); err != nil {
			return false, fmt.Errorf("create lot %s: %w", l.LotCode, err)
		}
	}

	order := &store.ProductionOrder{
		ERPOrderCode: o.OrderCode,
		OrderType:    o.OrderType,
		Status:       "OPEN_NOT_STARTED",
		ItemCode:     o.ItemCode,
		PlannedQty:   o.PlannedQty,
		Priority:     o.Priority,
	}
	if o.DueDate != "" {
		if t, err := time.Parse(time.RFC3339, o.DueDate); err == nil {
			order.DueDate = &t
		}
	}
	if err := p.db.CreateProductionOrder(order); err != nil {
		return false, fmt.Errorf("create order: %w", err)
	}
	p.db.AppendAudit("order", o.OrderCode, "imported", "", fmt.Sprintf("planned_qty=%d", o.PlannedQty), "erp")
	return true, nil
}
