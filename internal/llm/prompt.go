package llm

// SystemPrompt is sent unchanged with every extraction request.
const SystemPrompt = `Extract the receipt and return the following JSON format:
DO NOT include the dollar sign ($)
Capitalize all names.

{
    "items": [
        {
            "name": product_name,
            "price": product_price
        },
        ...
    ],
    "taxes": [
        {
            "name": tax_name,
            "price": tax_price
        },
        ...
    ],
    "total": total
}`
