package app

// defaultCatalog is written next to the binary on first run so the demo works
// without any setup. Operators grow it and reload at runtime.
const defaultCatalog = `apiVersion: komando/v1
intents:
  - key: sale_create
    name: Create sale order
    description: Sell a product to a partner.
    risk: medium
    phrases:
      - sell 5 chocolates to topu
      - create a sale order for acme
      - sell green tea to tanya
    keywords: [sell, sale, order]
    slots:
      - name: partner
        type: entity
        kind: partner
        required: true
        question: Who is the customer?
      - name: product
        type: entity
        kind: product
        required: true
        question: Which product should I sell?
      - name: quantity
        type: number
        required: true
        question: How many units?
  - key: inventory_adjust
    name: Adjust stock
    description: Set the counted stock level of a product.
    risk: high
    phrases:
      - update stock of chocolate to 100
      - set inventory of green tea to 50
    keywords: [stock, inventory, adjust]
    slots:
      - name: product
        type: entity
        kind: product
        required: true
        question: Which product should I adjust?
      - name: quantity
        type: number
        required: true
        question: What should the new stock level be?
`
