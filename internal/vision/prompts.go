// prompts.go - Prompt text sent to vision providers

package vision

// Prompts are in Spanish because the receipts are. Instructing the model in
// the receipt's language measurably reduces invented translations of product
// abbreviations.

const itemsPrompt = `Eres un lector experto de tickets de supermercado impresos.

Lee ESTA SECCION de un ticket y devuelve SOLO un objeto JSON con esta forma:
{
  "items": [
    {"raw_line": "...", "quantity": "...", "unit_price": "...", "total": "..."}
  ],
  "merchant": "...",
  "date": "...",
  "currency": "..."
}

Reglas:
- Transcribe cada renglon de articulo EXACTAMENTE como esta impreso, sin corregir ni traducir abreviaturas.
- "raw_line" es el renglon completo tal cual. "quantity", "unit_price" y "total" son los textos impresos de ese renglon; deja "" si no aparecen.
- Incluye renglones de descuento, promocion y cancelacion como items, con su signo tal como esta impreso.
- NO incluyas encabezados, subtotales, totales, impuestos, pagos ni cambio.
- NO calcules nada. NO inventes montos. Si un monto no se puede leer, escribe exactamente "no legible".
- Si la seccion no contiene renglones de articulos, devuelve {"items": []}.
- "merchant", "date" y "currency" solo si son visibles en esta seccion; si no, "".`

const transcribePrompt = `Transcribe el texto de esta seccion de un ticket de supermercado, un renglon de salida por cada renglon impreso, en orden.

Reglas:
- Copia EXACTAMENTE lo impreso, incluyendo montos, signos y abreviaturas.
- Si una palabra o monto no se puede leer, escribe "no legible" en su lugar.
- No agregues comentarios, encabezados ni formato; solo el texto del ticket.`

const totalsPrompt = `Lee el pie de este ticket de supermercado y devuelve SOLO un objeto JSON:
{
  "total": "...",
  "subtotal": "...",
  "tax": "...",
  "total_line": "...",
  "declared_item_count": 0
}

Reglas:
- "total" es el monto del total a pagar TAL COMO ESTA IMPRESO (texto, no numero calculado).
- "total_line" es el renglon completo donde aparece el total (por ejemplo "TOTAL A PAGAR $650.00").
- "subtotal" y "tax" (IVA/IEPS) como texto impreso; "" si no aparecen.
- "declared_item_count" es el numero de articulos que declara el ticket (por ejemplo "ART 15" o "15 ARTICULOS"); 0 si no aparece.
- NO calcules nada. Si un monto no se puede leer, escribe "no legible".`
