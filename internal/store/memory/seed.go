package memory

import "github.com/emiac1617/payment-reconciliation/internal/domain"

func seedOrder(id, number, store string, final float64, method, source, status, orderDate, sku, product string, qty int) domain.RawRecord {
	return domain.RawRecord{
		"id":              "id-" + id,
		"order_id":        id,
		"order_number":    number,
		"Store":           store,
		"customer_name":   "Customer " + number,
		"final_amount":    final,
		"prepaid_amount":  prepaidPart(method, final),
		"cod_amount":      final - prepaidPart(method, final),
		"shipping_amount": 0.0,
		"payment_method":  method,
		"payment_source":  source,
		"payment_status":  status,
		"order_date":      orderDate,
		"shipped_date":    nil,
		"delivered_date":  nil,
		"scanned_date":    orderDate,
		"product_name":    product,
		"sku":             sku,
		"quantity":        qty,
		"state":           "Karnataka",
		"adjusted_amount": 0.0,
		"remark":          nil,
	}
}

func prepaidPart(method string, final float64) float64 {
	if method == "COD" {
		return 0
	}
	return final
}

func seedOrders() []domain.RawRecord {
	orders := []domain.RawRecord{
		seedOrder("ORD001", "#1001", "Main Store", 1000, "Prepaid", "Razorpay", "paid", "2024-05-01", "TEE-RED,TEE-BLUE", "Cotton Tee Pack", 2),
		seedOrder("ORD002", "#1002", "Main Store", 1499, "PPD", "GoKwik", "paid", "2024-05-02", "HOODIE-BLK", "Fleece Hoodie", 1),
		seedOrder("ORD003", "#1003", "Main Store", 799, "COD", "", "pending", "2024-05-03", "CAP-GRN", "Baseball Cap", 1),
		seedOrder("ORD004", "#1004", "Outlet", 2500, "Prepaid", "Snapmint", "paid", "2024-04-18", "JKT-DEN", "Denim Jacket", 1),
		seedOrder("ORD005", "#1005", "Main Store", 650, "Prepaid", "Razorpay", "paid", "2024-04-22", "TEE-RED", "Cotton Tee", 1),
		seedOrder("ORD006", "#1006", "Outlet", 1200, "COD", "", "", "2024-03-30", "MUG-WHT,MUG-WHT", "Ceramic Mug Set", 2),
		seedOrder("ORD007", "#1007", "Outlet", 3000, "Prepaid", "Cred Pay", "paid", "2024-03-12", "SNK-WHT", "Canvas Sneakers", 1),
		seedOrder("ORD008", "#1008", "Main Store", 450, "Prepaid", "Razorpay", "", "2024-05-06", "SOCK-3PK", "Socks 3 Pack", 3),
	}
	orders[6]["adjusted_amount"] = 1500.0
	orders[6]["remark"] = "Balance settled by bank transfer"
	return orders
}

func seedTables() map[string][]domain.RawRecord {
	return map[string][]domain.RawRecord{
		"razorpay": {
			{"order_id": "ORD001", "amount": 950.0, "createdAt": "2024-05-01T10:15:00Z", "method": "upi"},
			{"order_id": "ORD005", "amount": 649.5, "created_at": "2024-04-22 18:40:00", "method": "card"},
		},
		"gokwik": {
			{"order_id": "ORD002", "Amount": "1499", "Transaction Date": "2024-05-02 09:05:00"},
		},
		"shiprocket": {
			{"order_id": "ORD001", "amount": 0.0, "courier": "Xpressbees", "delivered_date": "2024-05-05"},
		},
		"nimbus": {
			{"order_id": "ORD008", "amount": 450.0, "carrier": "Ekart", "created_at": "2024-05-07"},
		},
		"bluedart": {
			{"order_id": "ORD006", "amount": 1200.0, "carrier": "BlueDart Apex", "pick_up_date": "2024-04-01"},
		},
		"delhivery": {
			{"order_id": "ORD002", "cod_amount": 0.0, "carrier": "Delhivery Surface", "pickup_date": "2024-05-03"},
		},
		"snapmint": {
			{"order_id": "ORD004", "Order Value": 2500.0, "created_at": "2024-04-18T12:00:00Z"},
		},
		"shipway": {
			{"order_number": "#1001", "Order Value": 1000.0, "status": "delivered"},
		},
		"cred_pay": {
			{"order_id": "ORD004", "Credited Amount": 300.0, "created_at": "2024-04-19T08:30:00Z"},
			{"order_id": "ORD007", "Credited Amount": 0.0, "Amount": 1500.0, "Settlement_Time": "2024-03-13 11:00:00"},
		},
		"india_post": {
			{"order_id": "ORD008", "amount": 0.0},
		},
	}
}

func seedCreditNotes() []domain.CreditNote {
	return []domain.CreditNote{
		{"credit_note_id": "CN001", "order_id": "ORD008", "order_number": "#1008", "reason": "Damaged in transit", "amount": 150.0},
		{"credit_note_id": "CN002", "order_id": "", "order_number": "#1005", "reason": "Size exchange", "amount": 650.0},
	}
}
