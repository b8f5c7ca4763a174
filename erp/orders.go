package erp

import "fmt"

// Order is the ERP's view of a production order.
type Order struct {
	OrderCode  string `json:"orderCode"`
	OrderType  string `json:"orderType"` // PRODUCTION or REPLENISHMENT
	ItemCode   string `json:"itemCode"`
	PlannedQty int64  `json:"plannedQty"`
	DueDate    string `json:"dueDate"`
	Priority   int    `json:"priority"`
	Steps      []Step `json:"steps"`
	Lots       []Lot  `json:"lots"`
}

// Step is one routing step on an ERP order.
type Step struct {
	StepCode          string  `json:"stepCode"`
	Name              string  `json:"name"`
	Sequence          int     `json:"sequence"`
	StandardCycleTime float64 `json:"standardCycleTime"` // minutes per piece
}

// Lot is a material lot released against an order.
type Lot struct {
	LotCode  string `json:"lotCode"`
	ItemCode string `json:"itemCode"`
	Origin   string `json:"origin"`
}

type orderListResponse struct {
	Response
	Data []Order `json:"data"`
}

type orderDetailResponse struct {
	Response
	Data *Order `json:"data"`
}

// ListOpenOrders retrieves the ERP's open order book, paged.
func (c *Client) ListOpenOrders(page, size int) ([]Order, error) {
	var resp orderListResponse
	if err := c.get(fmt.Sprintf("/orders/open?page=%d&size=%d", page, size), &resp); err != nil {
		return nil, err
	}
	if err := checkResponse(&resp.Response); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetOrder retrieves one order by its ERP code.
func (c *Client) GetOrder(orderCode string) (*Order, error) {
	var resp orderDetailResponse
	if err := c.get(fmt.Sprintf("/orders/%s", orderCode), &resp); err != nil {
		return nil, err
	}
	if err := checkResponse(&resp.Response); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ReportCompletion posts executed quantities back to the ERP when an order closes.
func (c *Client) ReportCompletion(orderCode string, goodQty, totalQty int64) error {
	var resp Response
	req := struct {
		OrderCode string `json:"orderCode"`
		GoodQty   int64  `json:"goodQty"`
		TotalQty  int64  `json:"totalQty"`
	}{orderCode, goodQty, totalQty}
	if err := c.post("/orders/completion", &req, &resp); err != nil {
		return err
	}
	return checkResponse(&resp)
}
